// Package bundler makes a Mach-O executable self-contained by copying the
// non-system shared libraries it loads next to it and rewriting load commands
// to point at the copies.
//
// The work happens in three phases. Discover walks the dependency graph
// without touching any file, Plan assigns every bundlable library its
// destination and derives the copies and rewrites, and Apply performs them.
//
// # Basic Usage
//
// Bundle an executable with the default settings:
//
//	import "github.com/libbundler/libbundler/pkg/bundler"
//
//	b, err := bundler.New()
//	if err != nil {
//	    return err // install_name_tool is missing
//	}
//	plan, err := b.Bundle(ctx, "/path/to/MyApp.app/Contents/MacOS/MyApp")
//
// Libraries land in ../Libraries relative to the executable's directory. The
// executable refers to them through @executable_path and every copied library
// refers to its siblings through @loader_path, so the bundle can be moved as a
// whole.
//
// # Listing
//
// Discover and Plan never modify anything. Use them to show what would be
// bundled:
//
//	g, err := b.Discover(ctx, exe)
//	plan, err := b.Plan(g)
//	for _, n := range g.Bundlable() {
//	    fmt.Println(n.Path, plan.Status(n))
//	}
//
// Discover returns the partial graph together with every unresolvable
// reference, so a listing can still show what was found.
//
// # Exclusions
//
// Libraries under /usr/lib/ and /System/Library/ belong to the operating
// system and are never bundled. Replace the prefixes or add glob patterns:
//
//	rules, err := bundler.NewRules(
//	    []string{"/usr/lib/", "/System/Library/", "/opt/vendor/"},
//	    []string{"**/Python.framework/**"},
//	)
//	b = b.WithRules(rules)
//
// # Logging
//
// A Bundler is silent by default. Pass a logger to follow discovery and every
// rewrite:
//
//	b = b.WithLogger(bundler.NewLogger(bundler.LoggerConfig{
//	    Level:  bundler.LevelDebug,
//	    Format: bundler.FormatJSON,
//	}))
//
// # Errors
//
// All errors can be matched with errors.Is against ErrUnresolvable,
// ErrInspection, ErrNamingCollision, ErrCopy and ErrRewrite. Apply keeps going
// after a failed copy or rewrite and returns every failure joined together;
// running it again retries only what is still missing.
//
// # Thread Safety
//
// A Bundler must not be reconfigured while a call is running. Apply itself
// modifies up to WithJobs libraries concurrently.
package bundler
