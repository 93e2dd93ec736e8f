package scheduler

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/internal/errors"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/internal/lib/cron"
)

const EntityVertex = "vertexSchedule"

// VertexJobDescription is the user input for a Vertex AI notebook
// execution schedule.
type VertexJobDescription struct {
	InputFilename string `json:"input_filename"`
	DisplayName   string `json:"display_name"`

	MachineType      string `json:"machine_type"`
	AcceleratorType  string `json:"accelerator_type,omitempty"`
	AcceleratorCount string `json:"accelerator_count,omitempty"`
	DiskType         string `json:"disk_type,omitempty"`
	DiskSize         string `json:"disk_size,omitempty"`

	Network    string `json:"network,omitempty"`
	Subnetwork string `json:"subnetwork,omitempty"`

	ServiceAccount string `json:"service_account,omitempty"`
	KernelName     string `json:"kernel_name"`

	// output bucket, objects are written under gs://{bucket}
	CloudStorageBucket string `json:"cloud_storage_bucket"`

	MaxRunCount string `json:"max_run_count,omitempty"`
	StartTime   string `json:"start_time,omitempty"`
	EndTime     string `json:"end_time,omitempty"`

	ScheduleValue string `json:"schedule_value"`
	TimeZone      string `json:"time_zone,omitempty"`

	Parameters []string `json:"parameters,omitempty"`
}

func (v *VertexJobDescription) Validate() error {
	err := validation.ValidateStruct(v,
		validation.Field(&v.InputFilename, validation.Required),
		validation.Field(&v.DisplayName, validation.Required, validation.Match(JobNamePattern)),
		validation.Field(&v.MachineType, validation.Required),
		validation.Field(&v.KernelName, validation.Required),
		validation.Field(&v.CloudStorageBucket, validation.Required, validation.Match(BucketPattern)),
	)
	if err != nil {
		return errors.InvalidArgument(EntityVertex, err.Error())
	}

	for _, param := range v.Parameters {
		if !strings.Contains(param, ":") {
			return errors.InvalidArgument(EntityVertex, "parameter must be key:value, got "+param)
		}
	}

	if v.ScheduleValue != "" {
		if _, err := cron.ParseCronSchedule(v.ScheduleValue); err != nil {
			return errors.InvalidArgument(EntityVertex, "invalid schedule "+v.ScheduleValue)
		}
	}
	if v.TimeZone != "" {
		if _, err := time.LoadLocation(v.TimeZone); err != nil {
			return errors.InvalidArgument(EntityVertex, "unknown time zone "+v.TimeZone)
		}
	}
	return nil
}

// Cron returns the Vertex schedule cron, prefixing the zone when one is
// set and not UTC. An empty schedule becomes an every-minute cron which,
// combined with maxRunCount 1, means run once.
func (v *VertexJobDescription) Cron() string {
	expr := v.ScheduleValue
	if expr == "" {
		expr = "* * * * *"
	}
	if v.TimeZone != "" && v.TimeZone != "UTC" {
		return "TZ=" + v.TimeZone + " " + expr
	}
	return expr
}

// Labels converts the ordered key:value parameters into Vertex job
// labels.
func (v *VertexJobDescription) Labels() map[string]string {
	labels := map[string]string{}
	for _, param := range v.Parameters {
		parts := strings.SplitN(param, ":", 2)
		if len(parts) == 2 {
			labels[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return labels
}
