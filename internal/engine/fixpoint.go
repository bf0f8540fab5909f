package engine

import (
	"fmt"
	"log/slog"

	"github.com/roach88/xqcore/internal/expr"
)

// fixpoint compiles root and re-runs bottom-up optimization passes until a
// pass fires no rewrite. Returns the final tree and the number of passes,
// counting the compile pass.
//
// Two conditions stop the loop early, each with a warning: the pass limit,
// and a tree that repeats the text of an earlier pass (rules undoing each
// other). Every intermediate tree is a valid rewrite of the input, so the
// tree reached at that point is returned.
func fixpoint(cc *expr.CompileContext, root expr.Expr, maxPasses int, logger *slog.Logger) (expr.Expr, int, error) {
	before := cc.Rewrites()
	root, err := root.Compile(cc)
	if err != nil {
		return nil, 1, err
	}
	passes := 1
	if cc.Rewrites() == before {
		return root, passes, nil
	}

	prev := root.String()
	seen := map[string]int{prev: passes}
	for {
		if passes >= maxPasses {
			logger.Warn("optimization stopped at pass limit",
				"passes", passes,
				"rewrites", cc.Rewrites())
			return root, passes, nil
		}

		before = cc.Rewrites()
		next, err := expr.OptimizeTree(cc, root)
		if err != nil {
			return nil, passes, fmt.Errorf("optimization pass %d: %w", passes+1, err)
		}
		root = next
		passes++
		if cc.Rewrites() == before {
			return root, passes, nil
		}

		text := root.String()
		if text == prev {
			continue
		}
		if first, ok := seen[text]; ok {
			logger.Warn("optimization oscillates",
				"pass", passes,
				"repeats_pass", first,
				"tree", text)
			return root, passes, nil
		}
		seen[text] = passes
		prev = text
	}
}
