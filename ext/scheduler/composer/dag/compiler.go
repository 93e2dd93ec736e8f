package dag

import (
	"bytes"
	_ "embed"
	"text/template"
	"time"

	"github.com/google/uuid"

	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/core/scheduler"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/internal/errors"
)

//go:embed cluster_dag.py.tmpl
var clusterTemplate []byte

//go:embed serverless_dag.py.tmpl
var serverlessTemplate []byte

//go:embed resources/wrapper_papermill.py
var WrapperRunner []byte

// Compiler renders DAG source from a validated job description. Output
// is a pure function of its inputs except the start date and the
// serverless batch id, both injectable so tests can pin them.
type Compiler struct {
	cluster    *template.Template
	serverless *template.Template

	Now        func() time.Time
	NewBatchID func() string
}

func NewCompiler() (*Compiler, error) {
	cluster, err := template.New("composer_cluster_dag").Funcs(ComposerFuncMap()).Parse(string(clusterTemplate))
	if err != nil {
		return nil, errors.InternalError(EntitySchedulerComposer, "unable to parse cluster dag template", err)
	}
	serverless, err := template.New("composer_serverless_dag").Funcs(ComposerFuncMap()).Parse(string(serverlessTemplate))
	if err != nil {
		return nil, errors.InternalError(EntitySchedulerComposer, "unable to parse serverless dag template", err)
	}

	return &Compiler{
		cluster:    cluster,
		serverless: serverless,
		Now:        time.Now,
		NewBatchID: func() string { return uuid.NewString() },
	}, nil
}

func (c *Compiler) Compile(job *scheduler.JobDescription, inputs RenderInputs) ([]byte, error) {
	templateContext := PrepareContext(job, inputs, c.Now(), c.NewBatchID())

	tmpl := c.serverless
	if job.Mode == scheduler.ModeCluster {
		tmpl = c.cluster
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, templateContext); err != nil {
		return nil, errors.InternalError(EntitySchedulerComposer, "unable to compile template for job "+job.Name, err)
	}
	return buf.Bytes(), nil
}
