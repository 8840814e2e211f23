package biz

import (
	"github.com/hobojuki/feishu-hobojuki/internal/biz/usecase"
)

// Usecases contains all usecases
type Usecases struct {
	Context    *usecase.ContextBuilderUsecase
	Gatherer   *usecase.GathererUsecase
	Classifier *usecase.ClassifierUsecase
	Sanitizer  *usecase.Sanitizer
	Schedule   *usecase.ScheduleQueue
}
