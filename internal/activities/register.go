package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.CaptureQuestionActivity)
	w.RegisterActivity(a.TranslateActivity)
	w.RegisterActivity(a.ExtractEntitiesActivity)
	w.RegisterActivity(a.GenerateShapeActivity)
	w.RegisterActivity(a.GenerateQueryActivity)
	w.RegisterActivity(a.CompleteCaptureActivity)
}
