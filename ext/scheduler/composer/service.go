package composer

import (
	"context"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/raystack/salt/log"

	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/core/scheduler"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/ext/bucket"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/ext/gcp"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/ext/scheduler/composer/dag"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/internal/errors"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/internal/telemetry"
)

// Service orchestrates the lifecycle of Composer-scheduled notebook
// jobs: publish, list, pause, trigger, inspect, edit and delete.
type Service struct {
	l log.Logger

	envs     *Client
	airflow  *AirflowClient
	buckets  bucket.Factory
	compiler *dag.Compiler
}

func NewService(l log.Logger, envs *Client, airflow *AirflowClient, buckets bucket.Factory, compiler *dag.Compiler) *Service {
	return &Service{
		l:        l,
		envs:     envs,
		airflow:  airflow,
		buckets:  buckets,
		compiler: compiler,
	}
}

// CreateJob publishes a notebook job as a DAG. Steps are strictly
// ordered: the wrapper runner and the staged notebook must be in place
// before the DAG that references them becomes visible to the airflow
// scheduler. The DAG blob write is the publishing step; re-creating an
// existing dag_id overwrites it, last writer wins.
func (s *Service) CreateJob(ctx context.Context, creds gcp.Credentials, job *scheduler.JobDescription) error {
	spanCtx, span := startChildSpan(ctx, "CreateJob")
	defer span.End()

	env, err := s.envs.DescribeEnvironment(spanCtx, creds, job.ComposerEnvironment)
	if err != nil {
		return err
	}

	bkt, err := s.buckets.New(spanCtx, env.DagBucket)
	if err != nil {
		return err
	}
	defer bkt.Close()

	// best-effort fast path; a race uploading the wrapper twice is
	// harmless since the content is fixed
	wrapperPresent, err := bkt.Exists(spanCtx, dag.WrapperKey)
	if err != nil {
		return errors.Wrap(bucket.EntityStorage, "failed to check wrapper runner", err)
	}
	if !wrapperPresent {
		if err := bkt.WriteAll(spanCtx, dag.WrapperKey, dag.WrapperRunner, nil); err != nil {
			return errors.Wrap(bucket.EntityStorage, "failed to upload wrapper runner", err)
		}
		s.l.Info("uploaded wrapper runner", "bucket", env.DagBucket)
	}

	if !bucket.IsGSPath(job.InputFilename) {
		stagedKey := dag.InputNotebookKey(job.Name, job.InputFilename)
		if err := bucket.UploadFile(spanCtx, bkt, stagedKey, job.InputFilename); err != nil {
			return err
		}
		s.l.Info("staged input notebook", "job", job.Name, "key", stagedKey)
	}

	compiled, err := s.compiler.Compile(job, dag.RenderInputs{
		DagBucket: env.DagBucket,
		ProjectID: creds.ProjectID,
		Region:    creds.Region,
		Owner:     creds.Owner(),
	})
	if err != nil {
		return err
	}

	// a cancelled request must not publish a half-prepared schedule
	if err := spanCtx.Err(); err != nil {
		return errors.Wrap(dag.EntitySchedulerComposer, "request cancelled before publishing dag "+job.DagID, err)
	}

	if err := bkt.WriteAll(spanCtx, dag.DagKey(job.DagID), compiled, nil); err != nil {
		return errors.Wrap(bucket.EntityStorage, "failed to publish dag "+job.DagID, err)
	}

	telemetry.NewCounter("notebook_jobs_created_total", map[string]string{
		"mode": job.Mode.String(),
	}).Inc()
	s.l.Info("published dag", "dag_id", job.DagID, "bucket", env.DagBucket)
	return nil
}

// ListJobs returns airflow's listing of the DAGs this plugin owns.
func (s *Service) ListJobs(ctx context.Context, creds gcp.Credentials, envName string) ([]byte, error) {
	env, err := s.envs.DescribeEnvironment(ctx, creds, envName)
	if err != nil {
		return nil, err
	}
	return s.airflow.ListDags(ctx, s.auth(env, creds), dag.DagTag)
}

// UpdateJob flips the scheduling state. The UI sends status=true to
// run the job, which maps to is_paused=false.
func (s *Service) UpdateJob(ctx context.Context, creds gcp.Credentials, envName, dagID string, run bool) error {
	env, err := s.envs.DescribeEnvironment(ctx, creds, envName)
	if err != nil {
		return err
	}
	return s.airflow.UpdateDagPaused(ctx, s.auth(env, creds), dagID, !run)
}

// DeleteJob removes the DAG blob, which is the source of truth. With
// cascade it also deletes the DAG from airflow's database; a 404 from
// airflow is not a failure since the blob removal already unpublished
// the job.
func (s *Service) DeleteJob(ctx context.Context, creds gcp.Credentials, envName, dagID string, cascade bool) error {
	spanCtx, span := startChildSpan(ctx, "DeleteJob")
	defer span.End()

	env, err := s.envs.DescribeEnvironment(spanCtx, creds, envName)
	if err != nil {
		return err
	}

	var result *multierror.Error
	if cascade {
		if err := s.airflow.DeleteDag(spanCtx, s.auth(env, creds), dagID); err != nil {
			if !errors.IsErrorType(err, errors.ErrNotFound) {
				result = multierror.Append(result, err)
			}
		}
	}

	bkt, err := s.buckets.New(spanCtx, env.DagBucket)
	if err != nil {
		return multierror.Append(result, err).ErrorOrNil()
	}
	defer bkt.Close()

	if err := bucket.Delete(spanCtx, bkt, dag.DagKey(dagID)); err != nil {
		result = multierror.Append(result, err)
	}

	if err := result.ErrorOrNil(); err != nil {
		return err
	}
	s.l.Info("deleted dag", "dag_id", dagID, "cascade", cascade)
	return nil
}

// TriggerJob starts an immediate run.
func (s *Service) TriggerJob(ctx context.Context, creds gcp.Credentials, envName, dagID string) ([]byte, error) {
	env, err := s.envs.DescribeEnvironment(ctx, creds, envName)
	if err != nil {
		return nil, err
	}
	return s.airflow.TriggerDag(ctx, s.auth(env, creds), dagID)
}

// ListDagRuns passes the run listing through.
func (s *Service) ListDagRuns(ctx context.Context, creds gcp.Credentials, envName, dagID, startDate, endDate, offset string) ([]byte, error) {
	env, err := s.envs.DescribeEnvironment(ctx, creds, envName)
	if err != nil {
		return nil, err
	}
	return s.airflow.ListDagRuns(ctx, s.auth(env, creds), dagID, startDate, endDate, offset)
}

// ListTaskInstances passes the task listing through.
func (s *Service) ListTaskInstances(ctx context.Context, creds gcp.Credentials, envName, dagID, dagRunID string) ([]byte, error) {
	env, err := s.envs.DescribeEnvironment(ctx, creds, envName)
	if err != nil {
		return nil, err
	}
	return s.airflow.ListTaskInstances(ctx, s.auth(env, creds), dagID, dagRunID)
}

// GetTaskLogs returns the log text of one task try.
func (s *Service) GetTaskLogs(ctx context.Context, creds gcp.Credentials, envName, dagID, dagRunID, taskID string, tryNumber int) (string, error) {
	env, err := s.envs.DescribeEnvironment(ctx, creds, envName)
	if err != nil {
		return "", err
	}
	return s.airflow.GetTaskLogs(ctx, s.auth(env, creds), dagID, dagRunID, taskID, tryNumber)
}

// ListImportErrors surfaces DAG files airflow could not import.
func (s *Service) ListImportErrors(ctx context.Context, creds gcp.Credentials, envName string) ([]byte, error) {
	env, err := s.envs.DescribeEnvironment(ctx, creds, envName)
	if err != nil {
		return nil, err
	}
	return s.airflow.ListImportErrors(ctx, s.auth(env, creds))
}

// EditJob reads the stored DAG back and reconstructs the scheduling
// form fields from it.
func (s *Service) EditJob(ctx context.Context, creds gcp.Credentials, envName, dagID string) (map[string]any, error) {
	env, err := s.envs.DescribeEnvironment(ctx, creds, envName)
	if err != nil {
		return nil, err
	}

	bkt, err := s.buckets.New(ctx, env.DagBucket)
	if err != nil {
		return nil, err
	}
	defer bkt.Close()

	source, err := bkt.ReadAll(ctx, dag.DagKey(dagID))
	if err != nil {
		return nil, errors.Wrap(bucket.EntityStorage, "failed to read dag "+dagID, err)
	}
	return dag.Parse(source)
}

// DownloadOutput fetches a run's output notebook into the working
// directory, reporting 0 on success and 1 on failure.
func (s *Service) DownloadOutput(ctx context.Context, creds gcp.Credentials, envName, dagID, dagRunID string) (int, error) {
	env, err := s.envs.DescribeEnvironment(ctx, creds, envName)
	if err != nil {
		return 1, err
	}

	bkt, err := s.buckets.New(ctx, env.DagBucket)
	if err != nil {
		return 1, err
	}
	defer bkt.Close()

	key := dag.OutputNotebookKey(dagID, dagRunID)
	return bucket.DownloadTo(ctx, bkt, key, filepath.Base(key))
}

func (*Service) auth(env Environment, creds gcp.Credentials) AirflowAuth {
	return AirflowAuth{Host: env.AirflowURI, Token: creds.AccessToken}
}
