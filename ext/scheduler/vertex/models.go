package vertex

import (
	"fmt"
	"path"
	"strconv"

	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/core/scheduler"
)

// Wire shapes of the Vertex AI schedules API, trimmed to the fields
// the plugin reads and writes.

type MachineSpec struct {
	MachineType      string `json:"machineType,omitempty"`
	AcceleratorType  string `json:"acceleratorType,omitempty"`
	AcceleratorCount int    `json:"acceleratorCount,omitempty"`
}

type PersistentDiskSpec struct {
	DiskType   string `json:"diskType,omitempty"`
	DiskSizeGb string `json:"diskSizeGb,omitempty"`
}

type NetworkSpec struct {
	Network    string `json:"network,omitempty"`
	Subnetwork string `json:"subnetwork,omitempty"`
}

type CustomEnvironmentSpec struct {
	MachineSpec        *MachineSpec        `json:"machineSpec,omitempty"`
	PersistentDiskSpec *PersistentDiskSpec `json:"persistentDiskSpec,omitempty"`
	NetworkSpec        *NetworkSpec        `json:"networkSpec,omitempty"`
}

type GcsNotebookSource struct {
	URI string `json:"uri"`
}

type NotebookExecutionJob struct {
	DisplayName           string                 `json:"displayName,omitempty"`
	Labels                map[string]string      `json:"labels,omitempty"`
	CustomEnvironmentSpec *CustomEnvironmentSpec `json:"customEnvironmentSpec,omitempty"`
	GcsNotebookSource     *GcsNotebookSource     `json:"gcsNotebookSource,omitempty"`
	GcsOutputURI          string                 `json:"gcsOutputUri,omitempty"`
	ServiceAccount        string                 `json:"serviceAccount,omitempty"`
	KernelName            string                 `json:"kernelName,omitempty"`
	ScheduleResourceName  string                 `json:"scheduleResourceName,omitempty"`
}

type CreateNotebookExecutionJobRequest struct {
	Parent               string                `json:"parent,omitempty"`
	NotebookExecutionJob *NotebookExecutionJob `json:"notebookExecutionJob,omitempty"`
}

type Schedule struct {
	Name                  string `json:"name,omitempty"`
	DisplayName           string `json:"displayName,omitempty"`
	Cron                  string `json:"cron,omitempty"`
	MaxConcurrentRunCount string `json:"maxConcurrentRunCount,omitempty"`
	StartTime             string `json:"startTime,omitempty"`
	EndTime               string `json:"endTime,omitempty"`
	MaxRunCount           string `json:"maxRunCount,omitempty"`

	CreateNotebookExecutionJobRequest *CreateNotebookExecutionJobRequest `json:"createNotebookExecutionJobRequest,omitempty"`
}

// NotebookKey is where the input notebook is uploaded inside the fixed
// Vertex bucket.
func NotebookKey(displayName, filename string) string {
	return path.Join(displayName, path.Base(filename))
}

// PointerKey holds a one-line pointer to the uploaded notebook URI so
// the UI can locate it without listing the bucket.
func PointerKey(displayName string) string {
	return path.Join(displayName, displayName+".json")
}

// ScheduleFrom assembles the create-schedule request body from a
// validated description and the resolved notebook URI.
func ScheduleFrom(job *scheduler.VertexJobDescription, parent, notebookURI string) Schedule {
	machine := &MachineSpec{MachineType: job.MachineType}
	if job.AcceleratorType != "" {
		machine.AcceleratorType = job.AcceleratorType
		if count, err := strconv.Atoi(job.AcceleratorCount); err == nil {
			machine.AcceleratorCount = count
		}
	}

	env := &CustomEnvironmentSpec{MachineSpec: machine}
	if job.DiskType != "" || job.DiskSize != "" {
		env.PersistentDiskSpec = &PersistentDiskSpec{DiskType: job.DiskType, DiskSizeGb: job.DiskSize}
	}
	if job.Network != "" || job.Subnetwork != "" {
		env.NetworkSpec = &NetworkSpec{Network: job.Network, Subnetwork: job.Subnetwork}
	}

	return Schedule{
		DisplayName:           job.DisplayName,
		Cron:                  job.Cron(),
		MaxConcurrentRunCount: "1",
		StartTime:             job.StartTime,
		EndTime:               job.EndTime,
		MaxRunCount:           job.MaxRunCount,
		CreateNotebookExecutionJobRequest: &CreateNotebookExecutionJobRequest{
			Parent: parent,
			NotebookExecutionJob: &NotebookExecutionJob{
				DisplayName:           job.DisplayName,
				Labels:                job.Labels(),
				CustomEnvironmentSpec: env,
				GcsNotebookSource:     &GcsNotebookSource{URI: notebookURI},
				GcsOutputURI:          fmt.Sprintf("gs://%s", job.CloudStorageBucket),
				ServiceAccount:        job.ServiceAccount,
				KernelName:            job.KernelName,
			},
		},
	}
}
