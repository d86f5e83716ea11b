package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/dataroma/internal/model"
	"github.com/nao1215/dataroma/internal/store"
)

// Dataset is the state passed from step to step.
type Dataset struct {
	// Result holds the records being worked on.
	Result *model.Result

	// Metadata is the metadata of the structured cache Result came from
	// or was written to.
	Metadata model.Metadata

	// Enriched counts holdings changed by enrichment.
	Enriched int

	// Validation is set by ValidateStep.
	Validation *store.ValidationReport

	// Performed lists the steps that ran, in order.
	Performed []string

	// Errors collects step failures when the pipeline continues on error.
	Errors []error
}

// NewDataset returns an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{Result: model.NewResult()}
}

// Step is one stage of a pipeline.
type Step interface {
	// Do runs the step against ds.
	Do(ctx context.Context, ds *Dataset) error

	// Name returns the step's name for logging.
	Name() string
}

// Pipeline runs steps in order.
type Pipeline struct {
	steps           []Step
	logger          *slog.Logger
	continueOnError bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError keeps running later steps after one fails. Failed
// steps are logged and their errors recorded on the dataset.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all steps in sequence. Cancellation is checked before each
// step. It returns the first step error unless the pipeline continues on
// error, in which case errors are left on ds.Errors and nil is returned.
func (p *Pipeline) Execute(ctx context.Context, ds *Dataset) error {
	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline canceled", "step", step.Name(), "reason", ctx.Err())
			return ctx.Err()
		default:
		}

		p.logger.Debug("executing step", "step", step.Name())

		if err := step.Do(ctx, ds); err != nil {
			p.logger.Error("step failed", "step", step.Name(), "error", err)
			ds.Errors = append(ds.Errors, err)
			if !p.continueOnError {
				return err
			}
		} else {
			p.logger.Debug("step completed", "step", step.Name())
		}

		ds.Performed = append(ds.Performed, step.Name())
	}
	return nil
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
