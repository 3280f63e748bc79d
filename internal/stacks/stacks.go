// internal/stacks/stacks.go
// Package stacks identifies JavaScript libraries running on the audited
// page. Each known library has a probe expression evaluated in the page;
// hits are reported with whatever version the library exposes.
package stacks

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pharos-cli/api/schemas"
	"github.com/xkilldash9x/pharos-cli/internal/observability"
)

// stackCheck probes one library. The expression evaluates to null when the
// library is absent, and to a version string (possibly empty) when present.
type stackCheck struct {
	id    string
	name  string
	probe string
}

var stackChecks = []stackCheck{
	{
		id:    "jquery",
		name:  "jQuery",
		probe: `(() => { try { const v = window.jQuery && window.jQuery.fn && window.jQuery.fn.jquery; return v == null ? null : String(v); } catch (e) { return null; } })()`,
	},
	{
		id:    "react",
		name:  "React",
		probe: `(() => { try { if (window.React) return String(window.React.version || ''); return document.querySelector('[data-reactroot]') ? '' : null; } catch (e) { return null; } })()`,
	},
	{
		id:    "angularjs",
		name:  "AngularJS",
		probe: `(() => { try { const v = window.angular && window.angular.version && window.angular.version.full; return window.angular ? String(v || '') : null; } catch (e) { return null; } })()`,
	},
	{
		id:    "vue",
		name:  "Vue.js",
		probe: `(() => { try { if (window.Vue) return String(window.Vue.version || ''); return document.querySelector('[data-v-app]') ? '' : null; } catch (e) { return null; } })()`,
	},
	{
		id:    "next",
		name:  "Next.js",
		probe: `(() => { try { const n = window.next; return n ? String(n.version || '') : null; } catch (e) { return null; } })()`,
	},
	{
		id:    "nuxt",
		name:  "Nuxt.js",
		probe: `(() => { try { return (window.$nuxt || window.__NUXT__) ? '' : null; } catch (e) { return null; } })()`,
	},
	{
		id:    "ember",
		name:  "Ember.js",
		probe: `(() => { try { const e = window.Ember; return e ? String(e.VERSION || '') : null; } catch (e) { return null; } })()`,
	},
	{
		id:    "moment",
		name:  "Moment.js",
		probe: `(() => { try { const m = window.moment; return m ? String(m.version || '') : null; } catch (e) { return null; } })()`,
	},
}

// Detect probes the page for every known library concurrently. Probe
// failures are logged and treated as misses; the result order follows the
// check table regardless of completion order.
func Detect(ctx context.Context, evaluator schemas.Evaluator) ([]schemas.Stack, error) {
	logger := observability.GetLogger().Named("stacks")

	hits := make([]*schemas.Stack, len(stackChecks))
	var wg sync.WaitGroup
	for i, check := range stackChecks {
		i, check := i, check
		wg.Add(1)
		go func() {
			defer wg.Done()

			var version *string
			if err := evaluator.Evaluate(ctx, check.probe, &version); err != nil {
				logger.Debug("Stack probe failed.", zap.String("stack", check.id), zap.Error(err))
				return
			}
			if version == nil {
				return
			}
			hits[i] = &schemas.Stack{ID: check.id, Name: check.name, Version: *version}
		}()
	}
	wg.Wait()

	var detected []schemas.Stack
	for _, hit := range hits {
		if hit != nil {
			detected = append(detected, *hit)
		}
	}
	return detected, nil
}
