package dag

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/internal/errors"
)

// Field extraction is line-oriented on purpose: the DAG source is our
// own template output, not arbitrary python, so a handful of anchored
// patterns beats a language parser and stays stable across template
// cosmetic changes.
var (
	inputNotebookPattern = regexp.MustCompile(`input_notebook\s*=\s*'([^']*)'`)
	parametersPattern    = regexp.MustCompile(`(?s)parameters\s*=\s*'''(.*?)'''`)
	emailLinePattern     = regexp.MustCompile(`'email':\s*\[([^\]]*)\]`)
	emailAddrPattern     = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	clusterNamePattern   = regexp.MustCompile(`cluster_name\s*=\s*'([^']*)'`)
	retriesPattern       = regexp.MustCompile(`'retries':\s*'?(\d+)'?`)
	retryDelayPattern    = regexp.MustCompile(`retry_delay'?\s*[:=]\s*timedelta\(minutes=int\('(\d+)'\)\)`)
	emailFailurePattern  = regexp.MustCompile(`'email_on_failure':\s*'?(True|False)'?`)
	emailRetryPattern    = regexp.MustCompile(`'email_on_retry':\s*'?(True|False)'?`)
	emailSuccessPattern  = regexp.MustCompile(`'email_on_success':\s*'?(True|False)'?`)
	schedulePattern      = regexp.MustCompile(`schedule_interval\s*=\s*'([^']*)'`)
	stopClusterPattern   = regexp.MustCompile(`stop_cluster_check\s*=\s*'([^']*)'`)
	serverlessPattern    = regexp.MustCompile(`serverless_name\s*=\s*'([^']*)'`)
	timeZonePattern      = regexp.MustCompile(`time_zone\s*=\s*'([^']*)'`)
	clusterModePattern   = regexp.MustCompile(`submit_pyspark_job`)

	// storage-side escaping leaves stray backslashes behind; keep \n
	strayBackslash = regexp.MustCompile(`\\([^n])`)
)

// Parse reconstructs the form-population fields from a previously
// rendered DAG source. Unrecognized fields are omitted, the UI
// re-supplies defaults for them.
func Parse(source []byte) (map[string]any, error) {
	text := strayBackslash.ReplaceAllString(string(source), "$1")

	result := map[string]any{}
	// default mode, flipped when the cluster submit task is present
	result["mode_selected"] = "serverless"

	if m := inputNotebookPattern.FindStringSubmatch(text); m != nil {
		result["input_filename"] = m[1]
	}
	if m := parametersPattern.FindStringSubmatch(text); m != nil {
		result["parameters"] = parseParameters(m[1])
	}
	if m := emailLinePattern.FindStringSubmatch(text); m != nil {
		result["email"] = emailAddrPattern.FindAllString(m[1], -1)
	}
	if m := retriesPattern.FindStringSubmatch(text); m != nil {
		if count, err := strconv.Atoi(m[1]); err == nil {
			result["retry_count"] = count
		}
	}
	if m := retryDelayPattern.FindStringSubmatch(text); m != nil {
		if delay, err := strconv.Atoi(m[1]); err == nil {
			result["retry_delay"] = delay
		}
	}
	if m := emailFailurePattern.FindStringSubmatch(text); m != nil {
		result["email_failure"] = m[1] == "True"
	}
	if m := emailRetryPattern.FindStringSubmatch(text); m != nil {
		result["email_delay"] = m[1] == "True"
	}
	if m := emailSuccessPattern.FindStringSubmatch(text); m != nil {
		result["email_success"] = m[1] == "True"
	}
	if m := schedulePattern.FindStringSubmatch(text); m != nil {
		result["schedule_value"] = m[1]
	}
	if m := stopClusterPattern.FindStringSubmatch(text); m != nil {
		result["stop_cluster"] = m[1]
	}
	if m := serverlessPattern.FindStringSubmatch(text); m != nil {
		result["serverless_name"] = m[1]
	}
	if m := timeZonePattern.FindStringSubmatch(text); m != nil {
		result["time_zone"] = m[1]
	}
	if clusterModePattern.MatchString(text) {
		result["mode_selected"] = "cluster"
		if m := clusterNamePattern.FindStringSubmatch(text); m != nil {
			result["cluster_name"] = m[1]
		}
	}

	if _, ok := result["input_filename"]; !ok {
		if _, ok := result["schedule_value"]; !ok {
			return result, errors.InvalidArgument(EntitySchedulerComposer, "source does not look like a generated notebook dag")
		}
	}
	return result, nil
}

// parseParameters maps the rendered "key: value" lines back to the
// key:value form the scheduling form submits.
func parseParameters(block string) []string {
	params := []string{}
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) == 2 {
			params = append(params, strings.TrimSpace(parts[0])+":"+strings.TrimSpace(parts[1]))
		} else {
			params = append(params, line)
		}
	}
	return params
}
