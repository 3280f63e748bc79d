// internal/gather/collect.go
package gather

import (
	"fmt"
)

// collectPassArtifacts reconciles every gatherer history of a finished pass
// into its final artifact value, keyed by gatherer name.
func collectPassArtifacts(result *passResult) (map[string]any, error) {
	artifacts := make(map[string]any, len(result.histories))
	for _, h := range result.histories {
		artifact, err := reconcileHistory(h)
		if err != nil {
			return nil, err
		}
		artifacts[h.gatherer.Name()] = artifact
	}
	return artifacts, nil
}

// reconcileHistory folds a gatherer's hook outcomes into one artifact. The
// last defined value wins regardless of interleaved rejections; a gatherer
// that only rejected contributes its last error as the artifact. A gatherer
// that produced neither broke its contract and fails the run.
func reconcileHistory(h *gathererHistory) (any, error) {
	var lastValue any
	var lastErr error
	haveValue := false

	for _, o := range h.outcomes {
		if o.defined {
			lastValue = o.value
			haveValue = true
		}
		if o.err != nil {
			lastErr = o.err
		}
	}

	if haveValue {
		return lastValue, nil
	}
	if lastErr != nil {
		return lastErr, nil
	}
	return nil, fmt.Errorf("gatherer %s produced neither a value nor an error", h.gatherer.Name())
}

// mergeArtifacts folds one pass's artifacts into the run-level map. Names
// are validated unique up front, so a collision here means a gatherer lied
// about its name mid-run.
func mergeArtifacts(dst, src map[string]any) error {
	for name, artifact := range src {
		if _, exists := dst[name]; exists {
			return fmt.Errorf("artifact %q was produced by more than one pass", name)
		}
		dst[name] = artifact
	}
	return nil
}
