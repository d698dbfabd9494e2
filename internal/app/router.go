package app

import (
	"database/sql"
	"net/http"
	"time"

	"formbuilder/internal/app/observability"
	"formbuilder/internal/form"
	"formbuilder/internal/question"
	"formbuilder/internal/report"
	"formbuilder/internal/submission"
	"formbuilder/internal/version"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(cfg Config, db *sql.DB) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	collector := observability.NewCollector(db)
	r.Use(collector.Middleware)

	formHandler := form.NewHandler(form.NewService(db))
	questionHandler := question.NewHandler(question.NewService(db))
	versionHandler := version.NewHandler(version.NewService(db))
	submissionHandler := submission.NewHandler(submission.NewService(db))
	reportHandler := report.NewHandler(report.NewService(db))

	submitLimiter := NewIPRateLimiter(cfg.SubmitRateLimitPerMin, time.Minute)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/question-types", questionHandler.CreateQuestionType)
		api.Get("/question-types", questionHandler.ListQuestionTypes)
		api.Get("/question-types/{slug}", questionHandler.GetQuestionType)

		api.Post("/group-templates", questionHandler.CreateTemplate)
		api.Get("/group-templates", questionHandler.ListTemplates)
		api.Get("/group-templates/{slug}", questionHandler.GetTemplate)

		api.Post("/forms", formHandler.CreateForm)
		api.Get("/forms", formHandler.ListForms)

		api.Route("/forms/{slug}", func(f chi.Router) {
			f.Get("/", formHandler.GetForm)
			f.Patch("/", formHandler.UpdateForm)
			f.Delete("/", formHandler.DeleteForm)
			f.Get("/summary", reportHandler.Summary)
			f.Get("/published", versionHandler.LatestPublished)
			f.Get("/submissions/export", reportHandler.ExportSubmissions)

			f.Post("/pages", formHandler.CreatePage)
			f.Get("/pages", formHandler.ListPages)
			f.Post("/pages/reorder", formHandler.ReorderPages)
			f.Patch("/pages/{pageID}", formHandler.UpdatePage)
			f.Delete("/pages/{pageID}", formHandler.DeletePage)

			f.Post("/pages/{pageID}/questions", questionHandler.CreatePageQuestion)
			f.Get("/pages/{pageID}/questions", questionHandler.ListPageQuestions)
			f.Post("/pages/{pageID}/questions/reorder", questionHandler.ReorderPageQuestions)

			f.Post("/pages/{pageID}/groups", questionHandler.CreateGroup)
			f.Get("/pages/{pageID}/groups", questionHandler.ListGroups)
			f.Post("/pages/{pageID}/groups/reorder", questionHandler.ReorderGroups)
			f.Patch("/pages/{pageID}/groups/{groupID}", questionHandler.UpdateGroup)
			f.Delete("/pages/{pageID}/groups/{groupID}", questionHandler.DeleteGroup)

			f.Post("/groups/{groupID}/questions", questionHandler.CreateGroupQuestion)
			f.Get("/groups/{groupID}/questions", questionHandler.ListGroupQuestions)
			f.Post("/groups/{groupID}/questions/reorder", questionHandler.ReorderGroupQuestions)

			f.Post("/versions", versionHandler.CreateVersion)
			f.Get("/versions", versionHandler.ListVersions)
			f.Get("/versions/next-number", versionHandler.NextVersionNumber)
			f.Get("/versions/published", versionHandler.LatestPublished)
			f.Get("/versions/draft", versionHandler.Draft)
			f.Get("/versions/{number}", versionHandler.GetVersion)
			f.Post("/versions/{number}/publish", versionHandler.Publish)
		})

		api.Patch("/questions/{id}", questionHandler.UpdateQuestion)
		api.Delete("/questions/{id}", questionHandler.DeleteQuestion)

		api.Group(func(public chi.Router) {
			public.Use(RateLimitMiddleware(submitLimiter))
			public.Post("/submissions", submissionHandler.Create)
			public.Get("/submissions", submissionHandler.List)
			public.Get("/submissions/{id}", submissionHandler.Get)
			public.Patch("/submissions/{id}", submissionHandler.Update)
			public.Post("/submissions/{id}/complete", submissionHandler.Complete)
		})

		api.Get("/admin/metrics", collector.MetricsHandler)
	})

	return r
}
