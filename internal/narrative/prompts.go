package narrative

import (
	"bytes"
	"fmt"
	"text/template"

	"mockexam-service/internal/app"
	"mockexam-service/internal/domain"
)

const systemPrompt = `You are a direct, experienced CAT exam strategist. ` +
	`You give specific, actionable advice grounded in the student's actual numbers. ` +
	`No corporate jargon, no motivational filler.`

var analysisTemplate = template.Must(template.New("analysis").Parse(`Student performance data for {{.TestName}}:
{{if .CurrentDate}}Today's date: {{.CurrentDate}}
{{end}}{{if .DaysRemaining}}Days remaining until the exam: {{.DaysRemaining}}
{{end}}Total score: {{.TotalScore}}/{{.MaxScore}} ({{printf "%.1f" .TotalPercent}}%)
{{range .Sections}}{{.Name}}: {{.Score}}/{{.Max}} marks ({{printf "%.1f" .Percent}}%), attempted {{.Attempted}}, correct {{.Correct}}, accuracy {{printf "%.1f" .Accuracy}}%, time {{.Time}}
{{end}}Overall time on paper: {{.TotalTime}} across {{.AttemptedCount}} attempted questions (avg {{printf "%.0f" .AvgPerQuestion}}s each).
MCQ: {{.MCQ.Correct}}/{{.MCQ.Attempted}} correct. Fill-in: {{.FillIn.Correct}}/{{.FillIn.Attempted}} correct.

Analyze this attempt: section-wise reality check, time management, question
selection patterns, and a concrete 7-10 day action plan with realistic score
targets for the next mock.`))

var fallbackTemplate = template.Must(template.New("fallback").Parse(`## CAT Performance Analysis

### Overall Performance
- Total Score: {{.TotalScore}}/{{.MaxScore}} ({{printf "%.1f" .TotalPercent}}%)
- Performance Level: {{.Level}}

### Section-wise Marks Breakdown
{{range .Sections}}- {{.Name}}: {{.Score}}/{{.Max}} marks ({{printf "%.1f" .Percent}}%)
{{end}}
### Key Insights
- Strongest Section: {{.Best.Name}} ({{printf "%.1f" .Best.Percent}}%)
- Needs Improvement: {{.Worst.Name}} ({{printf "%.1f" .Worst.Percent}}%)
- Score Distribution: {{.Distribution}}

### Recommendations
1. Strengthen {{.Worst.Name}} first; aim for 60%+ in that section.
2. Keep practicing {{.Best.Name}} to hold your edge.
3. Practice the 40-minute per-section time allocation.
4. Time on paper so far: {{.TotalTime}} over {{.AttemptedCount}} attempted questions.
`))

type sectionFigures struct {
	Name      string
	Score     int
	Max       int
	Percent   float64
	Attempted int
	Correct   int
	Accuracy  float64
	Time      string
}

type promptData struct {
	TestName       string
	CurrentDate    string
	DaysRemaining  int
	TotalScore     int
	MaxScore       int
	TotalPercent   float64
	Sections       []sectionFigures
	TotalTime      string
	AttemptedCount int
	AvgPerQuestion float64
	MCQ            domain.TypeInsight
	FillIn         domain.TypeInsight

	// Fallback-only fields.
	Level        string
	Best         sectionFigures
	Worst        sectionFigures
	Distribution string
}

func figures(summary domain.PerformanceSummary, opts Options) promptData {
	data := promptData{
		TestName:       summary.TestName,
		CurrentDate:    opts.CurrentDate,
		DaysRemaining:  opts.DaysRemaining,
		TotalScore:     summary.TotalScore,
		MaxScore:       summary.MaxScore,
		TotalTime:      app.FormatDuration(summary.TimeAnalysis.TotalSeconds),
		AttemptedCount: summary.TimeAnalysis.AttemptedCount,
		AvgPerQuestion: summary.TimeAnalysis.AvgPerQuestion,
		MCQ:            summary.Insights.PerType[domain.MCQ],
		FillIn:         summary.Insights.PerType[domain.FillIn],
	}
	if summary.MaxScore > 0 {
		data.TotalPercent = float64(summary.TotalScore) / float64(summary.MaxScore) * 100
	}

	for _, name := range domain.SectionOrder {
		insight := summary.Insights.PerSection[name]
		data.Sections = append(data.Sections, sectionFigures{
			Name:      name,
			Score:     summary.SectionScores[name],
			Max:       summary.SectionMax[name],
			Percent:   summary.SectionPercent(name),
			Attempted: insight.Attempted,
			Correct:   insight.Correct,
			Accuracy:  insight.Accuracy,
			Time:      app.FormatDuration(insight.TotalTime),
		})
	}
	return data
}

func buildAnalysisPrompt(summary domain.PerformanceSummary, opts Options) (string, error) {
	var buf bytes.Buffer
	if err := analysisTemplate.Execute(&buf, figures(summary, opts)); err != nil {
		return "", fmt.Errorf("render analysis prompt: %w", err)
	}
	return buf.String(), nil
}

func buildFollowupContext(summary domain.PerformanceSummary, question string) (string, error) {
	prompt, err := buildAnalysisPrompt(summary, Options{})
	if err != nil {
		return "", err
	}
	return prompt + "\n\nStudent's follow-up question: " + question +
		"\n\nAnswer directly and specifically, referencing their numbers where relevant.", nil
}

// Fallback renders the deterministic analysis used whenever the model is
// unreachable. It depends only on the summary fields.
func Fallback(summary domain.PerformanceSummary) (string, error) {
	data := figures(summary, Options{})

	switch {
	case data.TotalPercent > 70:
		data.Level = "Excellent"
	case data.TotalPercent > 50:
		data.Level = "Good"
	case data.TotalPercent > 30:
		data.Level = "Average"
	default:
		data.Level = "Needs Improvement"
	}

	if len(data.Sections) > 0 {
		data.Best, data.Worst = data.Sections[0], data.Sections[0]
		for _, sec := range data.Sections[1:] {
			if sec.Percent > data.Best.Percent {
				data.Best = sec
			}
			if sec.Percent < data.Worst.Percent {
				data.Worst = sec
			}
		}
	}
	if data.Best.Percent-data.Worst.Percent < 20 {
		data.Distribution = "Balanced"
	} else {
		data.Distribution = "Unbalanced - focus on weak areas"
	}

	var buf bytes.Buffer
	if err := fallbackTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render fallback analysis: %w", err)
	}
	return buf.String(), nil
}
