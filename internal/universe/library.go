package universe

import (
	"fmt"
	"sort"
	"strings"

	"epic-engine/internal/models"

	"github.com/ilyakaznacheev/cleanenv"
	"go.uber.org/zap"
)

// Library resolves universe definitions by name. A YAML file can add new
// universes or override a preset with the same name; presets cover the
// popular settings out of the box.
type Library struct {
	byKey  map[string]models.Universe
	logger *zap.Logger
}

type libraryFile struct {
	Universes []universeEntry `yaml:"universes"`
}

type universeEntry struct {
	Name           string   `yaml:"name"`
	Genre          string   `yaml:"genre"`
	Description    string   `yaml:"description"`
	MainCharacters []string `yaml:"main_characters"`
	KeyLocations   []string `yaml:"key_locations"`
	CentralThemes  []string `yaml:"central_themes"`
	MagicSystem    string   `yaml:"magic_system"`
	TimePeriod     string   `yaml:"time_period"`
	WorldElements  []string `yaml:"world_elements"`
}

// Load builds the library from presets plus an optional YAML file. An
// empty path means presets only.
func Load(path string, logger *zap.Logger) (*Library, error) {
	lib := &Library{
		byKey:  make(map[string]models.Universe),
		logger: logger.Named("universe_library"),
	}
	for _, u := range Presets() {
		lib.byKey[key(u.Name)] = u
	}

	if path != "" {
		var file libraryFile
		if err := cleanenv.ReadConfig(path, &file); err != nil {
			return nil, fmt.Errorf("reading universe library %s: %w", path, err)
		}
		for _, entry := range file.Universes {
			if strings.TrimSpace(entry.Name) == "" {
				continue
			}
			lib.byKey[key(entry.Name)] = models.Universe{
				Name:           entry.Name,
				Genre:          entry.Genre,
				Description:    entry.Description,
				MainCharacters: entry.MainCharacters,
				KeyLocations:   entry.KeyLocations,
				CentralThemes:  entry.CentralThemes,
				MagicSystem:    entry.MagicSystem,
				TimePeriod:     entry.TimePeriod,
				WorldElements:  entry.WorldElements,
			}
		}
		lib.logger.Info("Loaded universe library file",
			zap.String("path", path),
			zap.Int("entries", len(file.Universes)),
		)
	}

	return lib, nil
}

// Get returns a copy of the named universe definition.
func (l *Library) Get(name string) (*models.Universe, bool) {
	u, ok := l.byKey[key(name)]
	if !ok {
		return nil, false
	}
	return &u, true
}

// Names lists all known universe names, sorted.
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.byKey))
	for _, u := range l.byKey {
		names = append(names, u.Name)
	}
	sort.Strings(names)
	return names
}

// All returns every universe definition, sorted by name.
func (l *Library) All() []models.Universe {
	out := make([]models.Universe, 0, len(l.byKey))
	for _, u := range l.byKey {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Presets are the built-in popular universes.
func Presets() []models.Universe {
	return []models.Universe{
		{
			Name:           "Harry Potter",
			Genre:          "Fantasy",
			Description:    "The wizarding world of witches, wizards and Hogwarts School of Witchcraft and Wizardry",
			MainCharacters: []string{"Harry Potter", "Hermione Granger", "Ron Weasley", "Albus Dumbledore", "Severus Snape", "Draco Malfoy"},
			KeyLocations:   []string{"Hogwarts", "Diagon Alley", "Ministry of Magic", "Grimmauld Place", "The Burrow"},
			CentralThemes:  []string{"Magic", "Friendship", "Good vs Evil", "Coming of Age", "Sacrifice"},
			MagicSystem:    "Wand-based magic with spells and potions",
			TimePeriod:     "Modern era (1990s-2000s)",
			WorldElements:  []string{"Wizarding World", "Houses", "Quidditch", "Dark Arts", "Magical Creatures"},
		},
		{
			Name:           "Lord of the Rings",
			Genre:          "High Fantasy",
			Description:    "Middle-earth in the Third Age, where free peoples stand against the Shadow",
			MainCharacters: []string{"Frodo Baggins", "Gandalf", "Aragorn", "Legolas", "Gimli", "Boromir", "Samwise Gamgee"},
			KeyLocations:   []string{"The Shire", "Rivendell", "Moria", "Rohan", "Gondor", "Mordor", "Isengard"},
			CentralThemes:  []string{"Good vs Evil", "Friendship", "Sacrifice", "Power Corruption", "Nature vs Industry"},
			MagicSystem:    "Subtle magic through rings, wizards, and ancient powers",
			TimePeriod:     "Third Age of Middle-earth",
			WorldElements:  []string{"The One Ring", "Different Races", "Ancient Languages", "Prophecies"},
		},
		{
			Name:           "Game of Thrones",
			Genre:          "Dark Fantasy",
			Description:    "The Seven Kingdoms of Westeros, where noble houses play the game of thrones",
			MainCharacters: []string{"Jon Snow", "Daenerys Targaryen", "Tyrion Lannister", "Arya Stark", "Sansa Stark", "Jaime Lannister"},
			KeyLocations:   []string{"Winterfell", "King's Landing", "The Wall", "Dragonstone", "Braavos", "Meereen"},
			CentralThemes:  []string{"Power Struggle", "Political Intrigue", "Family Honor", "Survival", "Prophecy"},
			MagicSystem:    "Dragons, faceless men, warging, and ancient magic",
			TimePeriod:     "Medieval fantasy setting",
			WorldElements:  []string{"Seven Kingdoms", "Iron Throne", "White Walkers", "Dragons", "Great Houses"},
		},
		{
			Name:           "Naruto",
			Genre:          "Ninja Fantasy",
			Description:    "A world of hidden villages where shinobi wield chakra in the pursuit of peace",
			MainCharacters: []string{"Naruto Uzumaki", "Sasuke Uchiha", "Sakura Haruno", "Kakashi Hatake", "Itachi Uchiha"},
			KeyLocations:   []string{"Hidden Leaf Village", "Hidden Sand Village", "Hidden Mist Village", "Valley of the End"},
			CentralThemes:  []string{"Friendship", "Perseverance", "Redemption", "Legacy", "Peace vs War"},
			MagicSystem:    "Chakra-based jutsu and ninja techniques",
			TimePeriod:     "Ninja world with modern elements",
			WorldElements:  []string{"Hidden Villages", "Tailed Beasts", "Sharingan", "Sage Mode", "Ninja Clans"},
		},
		{
			Name:           "Marvel Universe",
			Genre:          "Superhero",
			Description:    "A modern world shared by heroes, mutants and cosmic forces",
			MainCharacters: []string{"Spider-Man", "Iron Man", "Captain America", "Thor", "Hulk", "Black Widow"},
			KeyLocations:   []string{"New York City", "Asgard", "Wakanda", "X-Mansion", "Stark Tower", "S.H.I.E.L.D. Helicarrier"},
			CentralThemes:  []string{"Responsibility", "Heroism", "Sacrifice", "Identity", "Team Work"},
			MagicSystem:    "Superpowers, technology, magic, and cosmic forces",
			TimePeriod:     "Modern era",
			WorldElements:  []string{"Mutants", "Infinity Stones", "Multiverse", "S.H.I.E.L.D.", "Avengers"},
		},
	}
}
