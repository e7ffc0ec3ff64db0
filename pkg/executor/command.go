package executor

import (
	"regexp"
	"strings"

	"github.com/thehivegroup-ai/agentmesh/pkg/worker"
)

// Command grammar accepted from message text:
//
//	analyze repository: owner/name[, branch: X]
//	discover repositories[ in ORG][ topic: T]
//	map relationships: owner/name
//
// Anything else becomes a GenericRequest and is left to the worker.
var (
	analyzePattern  = regexp.MustCompile(`(?i)^analyze\s+repository:\s*([\w.-]+)/([\w.-]+)(?:\s*,\s*branch:\s*([\w./-]+))?\s*$`)
	discoverPattern = regexp.MustCompile(`(?i)^discover\s+repositories(?:\s+in\s+([\w.-]+))?(?:\s+topic:\s*([\w.-]+))?\s*$`)
	mapPattern      = regexp.MustCompile(`(?i)^map\s+relationships:\s*([\w.-]+)/([\w.-]+)\s*$`)
)

// ParseCommand turns message text into a worker request.
func ParseCommand(text string) worker.Request {
	trimmed := strings.TrimSpace(text)

	if m := analyzePattern.FindStringSubmatch(trimmed); m != nil {
		return worker.AnalyzeRequest{Owner: m[1], Name: m[2], Branch: m[3]}
	}
	if m := discoverPattern.FindStringSubmatch(trimmed); m != nil {
		return worker.DiscoverRequest{Organization: m[1], Topic: m[2]}
	}
	if m := mapPattern.FindStringSubmatch(trimmed); m != nil {
		return worker.MapRelationshipsRequest{Owner: m[1], Name: m[2]}
	}
	return worker.GenericRequest{Text: trimmed}
}
