package dag

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/core/scheduler"
)

const (
	EntitySchedulerComposer = "schedulerComposer"

	// DagTag marks every DAG this plugin owns so listings can filter
	// out unrelated DAGs living in the same environment.
	DagTag = "dataproc_jupyter_plugin"

	JobsDir       = "dags"
	JobsExtension = ".py"

	notebooksDir = "dataproc-notebooks"
	outputDir    = "dataproc-output"

	// WrapperKey is the shared papermill runner every generated DAG
	// invokes. It is ensured present before any DAG is published.
	WrapperKey = notebooksDir + "/wrapper_papermill.py"
)

// DagKey returns the blob key of the DAG source for a job.
func DagKey(dagID string) string {
	return path.Join(JobsDir, "dag_"+dagID+JobsExtension)
}

// InputNotebookKey is where a local notebook gets staged inside the
// environment's DAG bucket.
func InputNotebookKey(jobName, filename string) string {
	return path.Join(notebooksDir, jobName, "input_notebooks", path.Base(filename))
}

// OutputPrefix is the gs:// prefix the wrapper appends the run id and
// .ipynb extension to.
func OutputPrefix(bucket, jobName string) string {
	return fmt.Sprintf("gs://%s/%s/%s/output-notebooks/%s_", bucket, outputDir, jobName, jobName)
}

// OutputNotebookKey is the in-bucket key of a finished run's output.
func OutputNotebookKey(jobName, dagRunID string) string {
	return fmt.Sprintf("%s/%s/output-notebooks/%s_%s.ipynb", outputDir, jobName, jobName, dagRunID)
}

// RenderInputs carries the per-request facts the templates need on top
// of the job description itself.
type RenderInputs struct {
	DagBucket string
	ProjectID string
	Region    string
	// owner is the local part of the authenticated account
	Owner string
}

// TemplateContext is the fully prepared input to either DAG template.
type TemplateContext struct {
	Job *scheduler.JobDescription

	ProjectID string
	Region    string
	Owner     string
	Tag       string

	InputNotebook  string
	OutputNotebook string
	WrapperURI     string

	// python expression evaluating to yesterday midnight, zone aware
	// when a time zone was selected
	StartDateExpr string

	// YAML literal block, one "key: value" per line, possibly empty
	ParametersBlock string
	EmailListExpr   string

	Schedule string

	// render-time random component of the serverless batch id
	BatchID string
}

// PrepareContext resolves the notebook locations and renders the
// literal fragments that keep the templates line-oriented enough for
// the round-trip parser.
func PrepareContext(job *scheduler.JobDescription, inputs RenderInputs, now time.Time, batchID string) TemplateContext {
	inputNotebook := job.InputFilename
	if !strings.HasPrefix(inputNotebook, "gs://") {
		inputNotebook = fmt.Sprintf("gs://%s/%s", inputs.DagBucket, InputNotebookKey(job.Name, job.InputFilename))
	}

	return TemplateContext{
		Job:             job,
		ProjectID:       inputs.ProjectID,
		Region:          inputs.Region,
		Owner:           inputs.Owner,
		Tag:             DagTag,
		InputNotebook:   inputNotebook,
		OutputNotebook:  OutputPrefix(inputs.DagBucket, job.Name),
		WrapperURI:      fmt.Sprintf("gs://%s/%s", inputs.DagBucket, WrapperKey),
		StartDateExpr:   startDateExpr(now, job.TimeZone),
		ParametersBlock: parametersBlock(job.Parameters),
		EmailListExpr:   pyStringList(job.EmailList),
		Schedule:        job.Schedule(),
		BatchID:         batchID,
	}
}

// startDateExpr renders yesterday midnight in the selected zone; a
// naive UTC datetime when no zone was picked.
func startDateExpr(now time.Time, timeZone string) string {
	loc := time.UTC
	if timeZone != "" {
		if l, err := time.LoadLocation(timeZone); err == nil {
			loc = l
		}
	}
	y, m, d := now.In(loc).AddDate(0, 0, -1).Date()
	if timeZone == "" {
		return fmt.Sprintf("datetime.datetime(%d, %d, %d)", y, int(m), d)
	}
	return fmt.Sprintf("pendulum.datetime(%d, %d, %d, tz='%s')", y, int(m), d, timeZone)
}

// parametersBlock turns ordered key:value pairs into the YAML literal
// the wrapper consumes. An empty parameter set renders an empty block.
func parametersBlock(parameters []string) string {
	var lines []string
	for _, param := range parameters {
		parts := strings.SplitN(param, ":", 2)
		if len(parts) != 2 {
			continue
		}
		lines = append(lines, strings.TrimSpace(parts[0])+": "+strings.TrimSpace(parts[1]))
	}
	return strings.Join(lines, "\n")
}

func pyStringList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = "'" + item + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
