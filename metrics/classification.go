// Package metrics は分類モデルの評価指標を提供します。
package metrics

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/forestkit/pkg/errors"
)

// labelColumns は列ベクトル形式の正解と予測を検証し、整数ラベルに変換する
func labelColumns(op string, yTrue, yPred mat.Matrix) ([]int, []int, error) {
	if yTrue == nil || yPred == nil {
		return nil, nil, errors.NewValueError(op, "empty input")
	}
	rTrue, cTrue := yTrue.Dims()
	rPred, cPred := yPred.Dims()

	if rTrue == 0 {
		return nil, nil, errors.NewValueError(op, "empty input")
	}
	if rTrue != rPred {
		return nil, nil, errors.NewDimensionError(op, rTrue, rPred, 0)
	}
	if cTrue != 1 || cPred != 1 {
		return nil, nil, errors.NewValueError(op, "must be a column vector (n×1 matrix)")
	}

	trueLabels := make([]int, rTrue)
	predLabels := make([]int, rTrue)
	for i := 0; i < rTrue; i++ {
		trueLabels[i] = int(yTrue.At(i, 0))
		predLabels[i] = int(yPred.At(i, 0))
	}
	return trueLabels, predLabels, nil
}

// AccuracyScore は正解率を計算する
func AccuracyScore(yTrue, yPred mat.Matrix) (float64, error) {
	trueLabels, predLabels, err := labelColumns("AccuracyScore", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	correct := 0
	for i := range trueLabels {
		if trueLabels[i] == predLabels[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(trueLabels)), nil
}

// uniqueLabels は正解と予測に現れるラベルを昇順で返す
func uniqueLabels(a, b []int) []int {
	seen := make(map[int]bool)
	for _, v := range a {
		seen[v] = true
	}
	for _, v := range b {
		seen[v] = true
	}
	labels := make([]int, 0, len(seen))
	for v := range seen {
		labels = append(labels, v)
	}
	sort.Ints(labels)
	return labels
}

// ConfusionMatrix は混同行列を計算する。行が正解、列が予測に対応する。
// labels が nil の場合は yTrue と yPred に現れるラベルを昇順で使用する。
// labels に含まれないラベルを持つサンプルは無視される。
func ConfusionMatrix(yTrue, yPred mat.Matrix, labels []int) (*mat.Dense, error) {
	trueLabels, predLabels, err := labelColumns("ConfusionMatrix", yTrue, yPred)
	if err != nil {
		return nil, err
	}
	if labels == nil {
		labels = uniqueLabels(trueLabels, predLabels)
	}
	if len(labels) == 0 {
		return nil, errors.NewValueError("ConfusionMatrix", "labels must not be empty")
	}

	index := make(map[int]int, len(labels))
	for i, l := range labels {
		if _, dup := index[l]; dup {
			return nil, errors.NewValidationError("labels", "must be unique", l)
		}
		index[l] = i
	}

	cm := mat.NewDense(len(labels), len(labels), nil)
	for i := range trueLabels {
		ti, okT := index[trueLabels[i]]
		pi, okP := index[predLabels[i]]
		if !okT || !okP {
			continue
		}
		cm.Set(ti, pi, cm.At(ti, pi)+1)
	}
	return cm, nil
}

// ClassMetrics は1クラス分の評価指標
type ClassMetrics struct {
	Label     int
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Averages はクラス横断の平均値
type Averages struct {
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Report は classification_report 相当の集計結果
type Report struct {
	Classes     []ClassMetrics
	Accuracy    float64
	MacroAvg    Averages
	WeightedAvg Averages
}

// ClassificationReport はクラスごとの適合率・再現率・F1値・サポート数と、
// 正解率、マクロ平均、重み付き平均を計算する。
//
// 分母が0になる適合率・再現率は0とし、UndefinedMetricWarning を
// errors.Warn で通知する。
func ClassificationReport(yTrue, yPred mat.Matrix, labels []int) (*Report, error) {
	trueLabels, predLabels, err := labelColumns("ClassificationReport", yTrue, yPred)
	if err != nil {
		return nil, err
	}
	if labels == nil {
		labels = uniqueLabels(trueLabels, predLabels)
	}

	cm, err := ConfusionMatrix(yTrue, yPred, labels)
	if err != nil {
		return nil, err
	}

	k := len(labels)
	report := &Report{Classes: make([]ClassMetrics, k)}
	precision := make([]float64, k)
	recall := make([]float64, k)
	f1 := make([]float64, k)
	support := make([]float64, k)

	for c := 0; c < k; c++ {
		tp := cm.At(c, c)
		predicted := floats.Sum(mat.Col(nil, c, cm))
		actual := floats.Sum(mat.Row(nil, c, cm))

		if predicted == 0 {
			errors.Warn(errors.NewUndefinedMetricWarning("precision", labels[c], "no predicted samples", 0))
		}
		if actual == 0 {
			errors.Warn(errors.NewUndefinedMetricWarning("recall", labels[c], "no true samples", 0))
		}
		precision[c] = errors.SafeDivide(tp, predicted)
		recall[c] = errors.SafeDivide(tp, actual)
		f1[c] = errors.SafeDivide(2*precision[c]*recall[c], precision[c]+recall[c])
		support[c] = actual

		report.Classes[c] = ClassMetrics{
			Label:     labels[c],
			Precision: precision[c],
			Recall:    recall[c],
			F1:        f1[c],
			Support:   int(actual),
		}
	}

	total := floats.Sum(support)
	report.Accuracy = errors.SafeDivide(mat.Trace(cm), total)
	report.MacroAvg = Averages{
		Precision: floats.Sum(precision) / float64(k),
		Recall:    floats.Sum(recall) / float64(k),
		F1:        floats.Sum(f1) / float64(k),
		Support:   int(total),
	}
	report.WeightedAvg = Averages{
		Precision: errors.SafeDivide(floats.Dot(precision, support), total),
		Recall:    errors.SafeDivide(floats.Dot(recall, support), total),
		F1:        errors.SafeDivide(floats.Dot(f1, support), total),
		Support:   int(total),
	}
	return report, nil
}

// String は scikit-learn と同じテキストレイアウトでレポートを整形する
func (r *Report) String() string {
	width := len("weighted avg")
	for _, c := range r.Classes {
		if w := len(fmt.Sprint(c.Label)); w > width {
			width = w
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%*s  %9s %9s %9s %9s\n\n", width, "", "precision", "recall", "f1-score", "support")
	row := func(name string, p, rc, f float64, support int) {
		fmt.Fprintf(&b, "%*s  %9.2f %9.2f %9.2f %9d\n", width, name, p, rc, f, support)
	}
	for _, c := range r.Classes {
		row(fmt.Sprint(c.Label), c.Precision, c.Recall, c.F1, c.Support)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s  %9s %9s %9.2f %9d\n", width, "accuracy", "", "", r.Accuracy, r.MacroAvg.Support)
	row("macro avg", r.MacroAvg.Precision, r.MacroAvg.Recall, r.MacroAvg.F1, r.MacroAvg.Support)
	row("weighted avg", r.WeightedAvg.Precision, r.WeightedAvg.Recall, r.WeightedAvg.F1, r.WeightedAvg.Support)
	return b.String()
}
