package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"epic-engine/internal/handler"
	"epic-engine/internal/messaging"
	"epic-engine/internal/mocks"
	"epic-engine/internal/models"
	"epic-engine/internal/service"
	"epic-engine/internal/universe"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type httpFixture struct {
	engine *mocks.Engine
	tasks  *mocks.TaskPublisher
	unis   *mocks.UniverseRepository
	corpus *mocks.CorpusRepository
	router *gin.Engine
}

func newHTTPFixture(t *testing.T) *httpFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &httpFixture{
		engine: new(mocks.Engine),
		tasks:  new(mocks.TaskPublisher),
		unis:   new(mocks.UniverseRepository),
		corpus: new(mocks.CorpusRepository),
	}
	library, err := universe.Load("", zap.NewNop())
	require.NoError(t, err)
	universes := service.NewUniverseService(f.unis, f.corpus, library, 256, zap.NewNop())

	h := handler.NewEpicHandler(f.engine, universes, f.tasks, nil, zap.NewNop())
	f.router = gin.New()
	h.RegisterRoutes(f.router, func(c *gin.Context) { c.Next() })
	return f
}

func (f *httpFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func sampleStory() *models.Story {
	return &models.Story{
		ID:            uuid.New(),
		Title:         "Harry Potter: Redemption",
		MainTheme:     "Redemption",
		Protagonist:   "Harry Potter",
		TotalChapters: models.TotalChapters,
		Status:        models.StoryStatusActive,
		Universe:      models.Universe{Name: "Harry Potter", Genre: "Fantasy"},
	}
}

func TestCreateStoryEndpoint(t *testing.T) {
	t.Run("Valid premise returns 201 with the planned story", func(t *testing.T) {
		f := newHTTPFixture(t)
		story := sampleStory()
		f.engine.On("CreateEpic", mock.Anything, mock.MatchedBy(func(p models.Premise) bool {
			return p.UniverseName == "Harry Potter" && p.MainTheme == "Redemption" &&
				p.Protagonist == "Hermione Granger"
		})).Return(story, nil).Once()

		w := f.do(t, http.MethodPost, "/api/stories", gin.H{
			"universe_name": "Harry Potter",
			"main_theme":    "Redemption",
			"protagonist":   "Hermione Granger",
		})

		assert.Equal(t, http.StatusCreated, w.Code)
		var got models.Story
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, story.ID, got.ID)
		assert.Equal(t, story.Title, got.Title)
		f.engine.AssertExpectations(t)
	})

	t.Run("Missing universe name is rejected", func(t *testing.T) {
		f := newHTTPFixture(t)

		w := f.do(t, http.MethodPost, "/api/stories", gin.H{"main_theme": "Redemption"})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		f.engine.AssertNotCalled(t, "CreateEpic")
	})

	t.Run("Invalid premise maps to 400", func(t *testing.T) {
		f := newHTTPFixture(t)
		f.engine.On("CreateEpic", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("%w: main theme is empty", models.ErrInvalidPremise)).Once()

		w := f.do(t, http.MethodPost, "/api/stories", gin.H{
			"universe_name": "Harry Potter",
			"main_theme":    "   ",
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Unknown universe maps to 404", func(t *testing.T) {
		f := newHTTPFixture(t)
		f.engine.On("CreateEpic", mock.Anything, mock.Anything).
			Return(nil, models.ErrUniverseNotFound).Once()

		w := f.do(t, http.MethodPost, "/api/stories", gin.H{
			"universe_name": "Discworld",
			"main_theme":    "Belief",
		})

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAdvanceStoryEndpoint(t *testing.T) {
	t.Run("Valid request enqueues a task and returns 202", func(t *testing.T) {
		f := newHTTPFixture(t)
		story := sampleStory()
		f.engine.On("GetStory", mock.Anything, story.ID).Return(story, nil).Once()
		var published messaging.GenerationTaskPayload
		f.tasks.On("PublishGenerationTask", mock.Anything, mock.AnythingOfType("messaging.GenerationTaskPayload")).
			Run(func(args mock.Arguments) {
				published = args.Get(1).(messaging.GenerationTaskPayload)
			}).
			Return(nil).Once()

		w := f.do(t, http.MethodPost, "/api/stories/"+story.ID.String()+"/advance", gin.H{
			"arc_index": 2,
			"count":     5,
		})

		assert.Equal(t, http.StatusAccepted, w.Code)
		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "queued", resp["status"])
		assert.NotEmpty(t, resp["task_id"])
		assert.Equal(t, story.ID.String(), published.StoryID)
		assert.Equal(t, 2, published.ArcIndex)
		assert.Equal(t, 5, published.Count)
		f.tasks.AssertExpectations(t)
	})

	t.Run("Count defaults to one", func(t *testing.T) {
		f := newHTTPFixture(t)
		story := sampleStory()
		f.engine.On("GetStory", mock.Anything, story.ID).Return(story, nil).Once()
		var published messaging.GenerationTaskPayload
		f.tasks.On("PublishGenerationTask", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				published = args.Get(1).(messaging.GenerationTaskPayload)
			}).
			Return(nil).Once()

		w := f.do(t, http.MethodPost, "/api/stories/"+story.ID.String()+"/advance", gin.H{
			"arc_index": 1,
		})

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, 1, published.Count)
	})

	t.Run("Malformed story id is rejected", func(t *testing.T) {
		f := newHTTPFixture(t)

		w := f.do(t, http.MethodPost, "/api/stories/not-a-uuid/advance", gin.H{"arc_index": 1})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		f.engine.AssertNotCalled(t, "GetStory")
	})

	t.Run("Arc index out of range is rejected", func(t *testing.T) {
		f := newHTTPFixture(t)

		w := f.do(t, http.MethodPost, "/api/stories/"+uuid.NewString()+"/advance", gin.H{
			"arc_index": models.ArcCount + 1,
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		f.tasks.AssertNotCalled(t, "PublishGenerationTask")
	})

	t.Run("Count above the batch cap is rejected", func(t *testing.T) {
		f := newHTTPFixture(t)

		w := f.do(t, http.MethodPost, "/api/stories/"+uuid.NewString()+"/advance", gin.H{
			"arc_index": 1,
			"count":     models.MaxBatchSize + 1,
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		f.tasks.AssertNotCalled(t, "PublishGenerationTask")
	})

	t.Run("Unknown story returns 404 and enqueues nothing", func(t *testing.T) {
		f := newHTTPFixture(t)
		storyID := uuid.New()
		f.engine.On("GetStory", mock.Anything, storyID).Return(nil, models.ErrStoryNotFound).Once()

		w := f.do(t, http.MethodPost, "/api/stories/"+storyID.String()+"/advance", gin.H{"arc_index": 1})

		assert.Equal(t, http.StatusNotFound, w.Code)
		f.tasks.AssertNotCalled(t, "PublishGenerationTask")
	})

	t.Run("Publish failure returns 500", func(t *testing.T) {
		f := newHTTPFixture(t)
		story := sampleStory()
		f.engine.On("GetStory", mock.Anything, story.ID).Return(story, nil).Once()
		f.tasks.On("PublishGenerationTask", mock.Anything, mock.Anything).
			Return(errors.New("broker unreachable")).Once()

		w := f.do(t, http.MethodPost, "/api/stories/"+story.ID.String()+"/advance", gin.H{"arc_index": 1})

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestStoryReadEndpoints(t *testing.T) {
	t.Run("Get story returns 200", func(t *testing.T) {
		f := newHTTPFixture(t)
		story := sampleStory()
		f.engine.On("GetStory", mock.Anything, story.ID).Return(story, nil).Once()

		w := f.do(t, http.MethodGet, "/api/stories/"+story.ID.String(), nil)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("List stories wraps data", func(t *testing.T) {
		f := newHTTPFixture(t)
		f.engine.On("ListStories", mock.Anything, 20, 0).
			Return([]models.Story{*sampleStory()}, nil).Once()

		w := f.do(t, http.MethodGet, "/api/stories", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Data []models.Story `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Data, 1)
	})

	t.Run("Invalid limit is rejected", func(t *testing.T) {
		f := newHTTPFixture(t)

		w := f.do(t, http.MethodGet, "/api/stories?limit=abc", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		f.engine.AssertNotCalled(t, "ListStories")
	})

	t.Run("Limit is capped at the maximum", func(t *testing.T) {
		f := newHTTPFixture(t)
		f.engine.On("ListStories", mock.Anything, 100, 0).
			Return([]models.Story{}, nil).Once()

		w := f.do(t, http.MethodGet, "/api/stories?limit=5000", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		f.engine.AssertExpectations(t)
	})

	t.Run("Get chapter returns the committed text", func(t *testing.T) {
		f := newHTTPFixture(t)
		storyID := uuid.New()
		chapter := &models.Chapter{StoryID: storyID, Number: 12, Title: "Chapter 12: Embers"}
		f.engine.On("GetChapter", mock.Anything, storyID, 12).Return(chapter, nil).Once()

		w := f.do(t, http.MethodGet, "/api/stories/"+storyID.String()+"/chapters/12", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		var got models.Chapter
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, 12, got.Number)
	})

	t.Run("Chapter ahead of the cursor returns 404", func(t *testing.T) {
		f := newHTTPFixture(t)
		storyID := uuid.New()
		f.engine.On("GetChapter", mock.Anything, storyID, 900).
			Return(nil, models.ErrChapterNotFound).Once()

		w := f.do(t, http.MethodGet, "/api/stories/"+storyID.String()+"/chapters/900", nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Non-numeric chapter number is rejected", func(t *testing.T) {
		f := newHTTPFixture(t)

		w := f.do(t, http.MethodGet, "/api/stories/"+uuid.NewString()+"/chapters/twelve", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		f.engine.AssertNotCalled(t, "GetChapter")
	})

	t.Run("List chapters wraps summaries", func(t *testing.T) {
		f := newHTTPFixture(t)
		storyID := uuid.New()
		f.engine.On("ListChapters", mock.Anything, storyID, 20, 0).
			Return([]models.ChapterSummary{{Number: 1, Title: "Chapter 1: Sparks"}}, nil).Once()

		w := f.do(t, http.MethodGet, "/api/stories/"+storyID.String()+"/chapters", nil)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestUniverseEndpoints(t *testing.T) {
	t.Run("Create universe returns 201", func(t *testing.T) {
		f := newHTTPFixture(t)
		f.unis.On("Create", mock.Anything, mock.MatchedBy(func(u *models.Universe) bool {
			return u.Name == "Discworld" && len(u.MainCharacters) == 2
		})).Return(nil).Once()

		w := f.do(t, http.MethodPost, "/api/universes", gin.H{
			"name":            "Discworld",
			"genre":           "Comic Fantasy",
			"main_characters": []string{"Rincewind", "Granny Weatherwax"},
		})

		assert.Equal(t, http.StatusCreated, w.Code)
		f.unis.AssertExpectations(t)
	})

	t.Run("Universe without characters is rejected", func(t *testing.T) {
		f := newHTTPFixture(t)

		w := f.do(t, http.MethodPost, "/api/universes", gin.H{"name": "Empty World"})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		f.unis.AssertNotCalled(t, "Create")
	})

	t.Run("Duplicate universe returns 409", func(t *testing.T) {
		f := newHTTPFixture(t)
		f.unis.On("Create", mock.Anything, mock.Anything).
			Return(models.ErrUniverseAlreadyExists).Once()

		w := f.do(t, http.MethodPost, "/api/universes", gin.H{
			"name":            "Harry Potter",
			"main_characters": []string{"Harry Potter"},
		})

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("Get universe by name", func(t *testing.T) {
		f := newHTTPFixture(t)
		f.unis.On("GetByName", mock.Anything, "Harry Potter").
			Return(&models.Universe{Name: "Harry Potter", Genre: "Fantasy"}, nil).Once()

		w := f.do(t, http.MethodGet, "/api/universes/Harry%20Potter", nil)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Corpus upload stores the sample", func(t *testing.T) {
		f := newHTTPFixture(t)
		u := &models.Universe{ID: uuid.New(), Name: "Harry Potter"}
		f.unis.On("GetByName", mock.Anything, "Harry Potter").Return(u, nil).Once()
		f.corpus.On("Add", mock.Anything, mock.MatchedBy(func(s *models.CorpusSample) bool {
			return s.UniverseID == u.ID && s.Filename == "style.txt" && s.WordCount == 4
		})).Return(nil).Once()

		w := f.do(t, http.MethodPost, "/api/universes/Harry%20Potter/corpus", gin.H{
			"filename": "style.txt",
			"content":  "The owl flew north",
		})

		assert.Equal(t, http.StatusCreated, w.Code)
		f.corpus.AssertExpectations(t)
	})

	t.Run("Oversize corpus sample is rejected", func(t *testing.T) {
		f := newHTTPFixture(t)
		content := make([]byte, 300)
		for i := range content {
			content[i] = 'a'
		}

		w := f.do(t, http.MethodPost, "/api/universes/Harry%20Potter/corpus", gin.H{
			"filename": "style.txt",
			"content":  string(content),
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		f.corpus.AssertNotCalled(t, "Add")
	})

	t.Run("Corpus stats include the universe name", func(t *testing.T) {
		f := newHTTPFixture(t)
		u := &models.Universe{ID: uuid.New(), Name: "Harry Potter"}
		f.unis.On("GetByName", mock.Anything, "Harry Potter").Return(u, nil).Once()
		f.corpus.On("Stats", mock.Anything, u.ID).
			Return(&models.CorpusStats{SampleCount: 3, TotalWords: 1200}, nil).Once()

		w := f.do(t, http.MethodGet, "/api/universes/Harry%20Potter/corpus/stats", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		var stats models.CorpusStats
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
		assert.Equal(t, "Harry Potter", stats.UniverseName)
		assert.Equal(t, 3, stats.SampleCount)
	})
}
