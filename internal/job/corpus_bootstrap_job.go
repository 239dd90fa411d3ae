package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mrag/internal/service"
)

type Bootstrapper interface {
	Bootstrap(ctx context.Context) (*service.LoadResult, error)
}

// CorpusBootstrapJob seeds the vector store from the corpus when it is
// empty. Runs against a loaded store are no-ops.
type CorpusBootstrapJob struct {
	loader Bootstrapper
}

func NewCorpusBootstrapJob(loader Bootstrapper) *CorpusBootstrapJob {
	return &CorpusBootstrapJob{loader: loader}
}

func (j *CorpusBootstrapJob) Name() string {
	return "corpus_bootstrap"
}

func (j *CorpusBootstrapJob) Run(ctx context.Context) error {
	res, err := j.loader.Bootstrap(ctx)
	if err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("corpus bootstrap done",
		zap.Bool("loaded", res.Loaded),
		zap.Bool("existing", res.Existing),
		zap.Bool("skipped", res.Skipped),
		zap.Int("files", res.Files),
		zap.Int("vectors", res.Vectors),
	)
	return nil
}
