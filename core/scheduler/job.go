package scheduler

import (
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/internal/errors"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/internal/lib/cron"
)

const (
	EntityJob = "notebookJob"

	ModeCluster    Mode = "cluster"
	ModeServerless Mode = "serverless"
)

type Mode string

func (m Mode) String() string {
	return string(m)
}

// Input contracts enforced before any request reaches an orchestrator.
var (
	BucketPattern      = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{1,61}[a-z0-9]$`)
	EnvironmentPattern = regexp.MustCompile(`^[a-z]([a-z0-9-]{0,62}[a-z0-9])?$`)
	DagIDPattern       = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
	DagRunIDPattern    = regexp.MustCompile(`^[a-zA-Z0-9_:\+.\-]+$`)
	JobNamePattern     = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	ProjectIDPattern   = regexp.MustCompile(`^[a-z0-9.:\-]+$`)
	RegionPattern      = regexp.MustCompile(`^[a-z]+-[a-z]+\d+$`)
)

// ServerlessConfig carries the Dataproc serverless batch settings for a
// serverless-mode job.
type ServerlessConfig struct {
	// Spark History Server cluster backing the batch
	PHSCluster string `json:"phs"`
	// session display name
	DisplayName string `json:"display_name"`
	// optional custom container image
	ContainerImage string `json:"container_image,omitempty"`
	// optional Dataproc Metastore service reference
	MetastoreService string `json:"metastore_service,omitempty"`
	RuntimeVersion   string `json:"version"`
}

// JobDescription is the user input for a Composer-scheduled notebook
// job. It is constructed from a request, consumed once by the create
// orchestrator and then discarded.
type JobDescription struct {
	InputFilename       string            `json:"input_filename"`
	ComposerEnvironment string            `json:"composer_environment_name"`
	DagID               string            `json:"dag_id"`
	Name                string            `json:"name"`
	Mode                Mode              `json:"mode_selected"`
	ClusterName         string            `json:"cluster_name,omitempty"`
	Serverless          *ServerlessConfig `json:"serverless_name,omitempty"`

	// ordered key:value pairs passed to the notebook via papermill
	Parameters []string `json:"parameters"`

	RetryCount int `json:"retry_count"`
	RetryDelay int `json:"retry_delay"`

	EmailList      []string `json:"email"`
	EmailOnFailure bool     `json:"email_failure"`
	EmailOnRetry   bool     `json:"email_delay"`
	EmailOnSuccess bool     `json:"email_success"`

	// cron expression; empty means run once
	ScheduleValue string `json:"schedule_value"`
	// IANA zone; empty means a naive UTC start date
	TimeZone string `json:"time_zone,omitempty"`

	StopClusterAfterRun bool `json:"stop_cluster"`
}

func (j *JobDescription) Validate() error {
	err := validation.ValidateStruct(j,
		validation.Field(&j.InputFilename, validation.Required),
		validation.Field(&j.ComposerEnvironment, validation.Required, validation.Match(EnvironmentPattern)),
		validation.Field(&j.DagID, validation.Required, validation.Match(DagIDPattern)),
		validation.Field(&j.Name, validation.Required, validation.Match(JobNamePattern)),
		validation.Field(&j.Mode, validation.Required, validation.In(ModeCluster, ModeServerless)),
		validation.Field(&j.RetryCount, validation.Min(0)),
		validation.Field(&j.RetryDelay, validation.Min(0)),
		validation.Field(&j.EmailList, validation.Each(is.Email)),
	)
	if err != nil {
		return errors.InvalidArgument(EntityJob, err.Error())
	}

	if j.Name != j.DagID {
		return errors.InvalidArgument(EntityJob, "name and dag_id must match")
	}

	switch j.Mode {
	case ModeCluster:
		if j.ClusterName == "" {
			return errors.InvalidArgument(EntityJob, "cluster_name is required for cluster mode")
		}
		if j.Serverless != nil {
			return errors.InvalidArgument(EntityJob, "serverless config is not applicable to cluster mode")
		}
	case ModeServerless:
		if j.ClusterName != "" {
			return errors.InvalidArgument(EntityJob, "cluster_name is not applicable to serverless mode")
		}
		if j.StopClusterAfterRun {
			return errors.InvalidArgument(EntityJob, "stop_cluster is not applicable to serverless mode")
		}
		if j.Serverless == nil {
			return errors.InvalidArgument(EntityJob, "serverless config is required for serverless mode")
		}
		if j.Serverless.PHSCluster == "" {
			return errors.InvalidArgument(EntityJob, "spark history server cluster is required for serverless mode")
		}
		if j.Serverless.RuntimeVersion == "" {
			return errors.InvalidArgument(EntityJob, "runtime version is required for serverless mode")
		}
	}

	for _, param := range j.Parameters {
		if !strings.Contains(param, ":") {
			return errors.InvalidArgument(EntityJob, "parameter must be key:value, got "+param)
		}
	}

	if j.ScheduleValue != "" {
		if _, err := cron.ParseCronSchedule(j.ScheduleValue); err != nil {
			return errors.InvalidArgument(EntityJob, "invalid schedule "+j.ScheduleValue)
		}
	}
	if j.TimeZone != "" {
		if _, err := time.LoadLocation(j.TimeZone); err != nil {
			return errors.InvalidArgument(EntityJob, "unknown time zone "+j.TimeZone)
		}
	}
	return nil
}

// Schedule returns the airflow schedule_interval value, defaulting to
// a one-shot run when no cron was supplied.
func (j *JobDescription) Schedule() string {
	if j.ScheduleValue == "" {
		return "@once"
	}
	return j.ScheduleValue
}
