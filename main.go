// Command codeaudit collects code-review findings into one audit trail.
package main

import (
	"github.com/huangsam/codeaudit/cmd"
	"github.com/huangsam/codeaudit/internal/contract"
)

func main() {
	if err := cmd.Execute(); err != nil {
		contract.LogFatal("codeaudit", err)
	}
}
