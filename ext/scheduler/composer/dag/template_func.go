package dag

import (
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// ComposerFuncMap is the sprig function map plus python literal
// helpers used by the DAG templates.
func ComposerFuncMap() template.FuncMap {
	funcMap := sprig.TxtFuncMap()
	funcMap["pybool"] = pyBool
	return funcMap
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
