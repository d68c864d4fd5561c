package log

// Model and operation context.
const (
	// ModelNameKey identifies the type of model, e.g. "RandomForestClassifier".
	ModelNameKey = "model.name"

	// EstimatorIDKey identifies a specific model instance.
	EstimatorIDKey = "estimator.id"

	// OperationKey names the operation being performed ("fit", "predict", ...).
	OperationKey = "ml.operation"

	// ComponentKey identifies the package or component logging the record.
	ComponentKey = "ml.component"

	// PhaseKey indicates the lifecycle phase ("training", "validation", ...).
	PhaseKey = "ml.phase"

	// StageKey names a quick-start stage such as "split" or "cross_validate".
	StageKey = "pipeline.stage"

	// StepKey names a pipeline step ("scaler", "classifier").
	StepKey = "pipeline.step"
)

// Data shape.
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	ClassesKey  = "data.classes"
)

// Performance and evaluation.
const (
	DurationMsKey = "perf.duration_ms"
	AccuracyKey   = "metrics.accuracy"
	CVMeanKey     = "cv.mean"
	CVStdKey      = "cv.std"
	FoldKey       = "cv.fold"
	NSplitsKey    = "cv.n_splits"
	ConfidenceKey = "preds.confidence"
	PredsKey      = "preds.count"
)

// Configuration and reproducibility.
const (
	RandomSeedKey   = "config.random_seed"
	NEstimatorsKey  = "model.n_estimators"
	RunIDKey        = "run.id"
	ArtifactPathKey = "artifact.path"
)

// Error context.
const (
	ErrorCodeKey  = "error.code"
	ErrorTypeKey  = "error.type"
	StacktraceKey = "error.stacktrace"
)

// Standard attribute values.
const (
	OperationFit          = "fit"
	OperationPredict      = "predict"
	OperationPredictProba = "predict_proba"
	OperationTransform    = "transform"
	OperationFitTransform = "fit_transform"
	OperationScore        = "score"
	OperationSave         = "save"
	OperationLoad         = "load"

	PhaseTraining      = "training"
	PhaseValidation    = "validation"
	PhaseTesting       = "testing"
	PhaseInference     = "inference"
	PhasePreprocessing = "preprocessing"
)
