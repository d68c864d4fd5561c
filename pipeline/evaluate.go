package pipeline

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/forestkit/metrics"
	"github.com/YuminosukeSato/forestkit/pkg/errors"
	"github.com/YuminosukeSato/forestkit/pkg/log"
)

// Evaluation summarizes a fitted pipeline on held-out data.
type Evaluation struct {
	Accuracy    float64
	Report      *metrics.Report
	Confusion   *mat.Dense
	Predictions mat.Matrix
}

// Evaluate predicts XTest and scores the predictions against yTest.
func Evaluate(p *Pipeline, XTest, yTest mat.Matrix) (*Evaluation, error) {
	pred, err := p.Predict(XTest)
	if err != nil {
		return nil, err
	}
	accuracy, err := metrics.AccuracyScore(yTest, pred)
	if err != nil {
		return nil, err
	}
	report, err := metrics.ClassificationReport(yTest, pred, p.Classes())
	if err != nil {
		return nil, err
	}
	confusion, err := metrics.ConfusionMatrix(yTest, pred, p.Classes())
	if err != nil {
		return nil, err
	}

	rows, _ := pred.Dims()
	p.logger.Info("Pipeline evaluated",
		log.OperationKey, log.OperationScore,
		log.SamplesKey, rows,
		log.AccuracyKey, accuracy,
	)
	return &Evaluation{
		Accuracy:    accuracy,
		Report:      report,
		Confusion:   confusion,
		Predictions: pred,
	}, nil
}

// Prediction is the outcome for a single row.
type Prediction struct {
	Label         int
	Probabilities []float64 // ordered as Pipeline.Classes()
	Confidence    float64   // max(Probabilities)
}

// PredictBatch returns one Prediction per row of X.
func PredictBatch(p *Pipeline, X mat.Matrix) ([]Prediction, error) {
	proba, err := p.PredictProba(X)
	if err != nil {
		return nil, err
	}
	classes := p.Classes()
	rows, cols := proba.Dims()
	if cols != len(classes) {
		return nil, errors.NewDimensionError("PredictBatch", len(classes), cols, 1)
	}

	preds := make([]Prediction, rows)
	confidence := make([]float64, rows)
	for i := range preds {
		probs := mat.Row(nil, i, proba)
		best := floats.MaxIdx(probs)
		preds[i] = Prediction{
			Label:         classes[best],
			Probabilities: probs,
			Confidence:    probs[best],
		}
		confidence[i] = probs[best]
	}

	p.logger.Debug("Batch predicted",
		log.OperationKey, log.OperationPredictProba,
		log.PredsKey, rows,
		log.ConfidenceKey, floats.Sum(confidence)/float64(rows),
	)
	return preds, nil
}
