package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"tagger/tagmanager"
	"tagger/tags"
)

// func newRootCmd {{{

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "tagger",
		Short: "Tag scene entities and find them by their tags",
		Long: `Attach, query and change free-form tags on the entities of each scene.

Entities are given as scene/id. Tags are given comma separated, a tag containing
{#} gets the lowest free number within its scene, {id} gets a unique id.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Just printing help.
			if !cmd.HasParent() {
				return nil
			}

			return a.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.printStats(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cFile, "conf", "", "YAML configuration file or directory")
	pf.BoolVar(&a.debug, "debug", false, "Enable debug logging")
	pf.BoolVar(&a.stats, "stats", false, "Print operation counters when done")

	root.AddCommand(
		newQueryCmd(a),
		newGetCmd(a),
		newHasCmd(a),
		newUpdateCmd(a, "set", tagmanager.OpSet, "Replace the tags of each entity"),
		newUpdateCmd(a, "add", tagmanager.OpAdd, "Add tags to each entity"),
		newUpdateCmd(a, "rm", tagmanager.OpRemove, "Remove tags from each entity"),
		newUpdateCmd(a, "toggle", tagmanager.OpToggle, "Toggle tags on each entity"),
		newClearCmd(a),
		newApplyCmd(a),
		newCreateCmd(a),
	)

	return root
} // }}}

// func entities {{{

func entities(a *app, args []string) ([]tags.Entity, error) {
	raws := make([]interface{}, len(args))
	for i, arg := range args {
		raws[i] = arg
	}

	return a.tm.Handles(raws...)
} // }}}

// func formatEntity {{{

func formatEntity(e tags.Entity) string {
	return e.Scope + "/" + e.ID
} // }}}

// type tagFlags struct {{{

// The --tags and --from-file flags shared by the commands that write tags.
type tagFlags struct {
	tags string
	file string
} // }}}

// func tagFlags.add {{{

func (tf *tagFlags) add(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&tf.tags, "tags", "t", "", "Comma separated tags")
	cmd.Flags().StringVar(&tf.file, "from-file", "", "Read tags from a file, one per line")
} // }}}

// func tagFlags.load {{{

func (tf *tagFlags) load() (tags.Tags, error) {
	t, err := tags.NormalizeTags(tf.tags, "tags")
	if err != nil {
		return nil, err
	}

	if tf.file == "" {
		return t, nil
	}

	ft, err := tags.LoadTagFile(os.DirFS(filepath.Dir(tf.file)), filepath.Base(tf.file))
	if err != nil {
		return nil, err
	}

	return t.Combine(ft), nil
} // }}}

// func newQueryCmd {{{

func newQueryCmd(a *app) *cobra.Command {
	var opts tagmanager.QueryOptions
	var saved string
	var patterns, ignore, objects []string

	cmd := &cobra.Command{
		Use:   "query [tags...]",
		Short: "List the entities whose tags match",
		Long: `List the entities whose tags match.

By default every tag given has to match, * within a tag matches anything.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error

			q := make([]interface{}, 0, len(args)+len(patterns))
			for _, arg := range args {
				for _, tag := range strings.Split(arg, ",") {
					q = append(q, tag)
				}
			}

			if saved != "" {
				sq, ok := a.tm.SavedQuery(saved)
				if !ok {
					return fmt.Errorf("no saved query %q", saved)
				}

				for _, sqq := range sq.Queries {
					q = append(q, sqq)
				}

				opts.MatchAny = opts.MatchAny || sq.Options.MatchAny
				opts.MatchExactly = opts.MatchExactly || sq.Options.MatchExactly
				opts.CaseInsensitive = opts.CaseInsensitive || sq.Options.CaseInsensitive
			}

			for _, p := range patterns {
				re, err := regexp.Compile(p)
				if err != nil {
					return fmt.Errorf("--regex %q: %w", p, err)
				}

				q = append(q, re)
			}

			if !cmd.Flags().Changed("ci") && a.tm.CaseInsensitive() {
				opts.CaseInsensitive = true
			}

			if opts.Ignore, err = entities(a, ignore); err != nil {
				return err
			}

			if len(objects) > 0 {
				if opts.Objects, err = entities(a, objects); err != nil {
					return err
				}
			}

			res, err := a.tm.Query(cmd.Context(), q, opts)
			if err != nil {
				return err
			}

			if !opts.AllScenes || opts.Objects != nil {
				for _, e := range res.Entities {
					fmt.Fprintln(a.out, formatEntity(e))
				}

				return nil
			}

			scenes := make([]string, 0, len(res.Scopes))
			for scene := range res.Scopes {
				scenes = append(scenes, scene)
			}

			sort.Strings(scenes)

			for _, scene := range scenes {
				for _, e := range res.Scopes[scene] {
					fmt.Fprintln(a.out, formatEntity(e))
				}
			}

			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.SceneID, "scene", "", "Scene to search (defaults to the configured scene)")
	f.BoolVar(&opts.AllScenes, "all", false, "Search every scene")
	f.BoolVar(&opts.MatchAny, "any", false, "Match if any tag matches")
	f.BoolVar(&opts.MatchExactly, "exact", false, "Match only entities with exactly these tags")
	f.BoolVar(&opts.CaseInsensitive, "ci", false, "Ignore case")
	f.StringVar(&saved, "saved", "", "Use a query saved in the configuration")
	f.StringArrayVar(&patterns, "regex", nil, "Regular expression to match a tag against (repeatable)")
	f.StringArrayVar(&ignore, "ignore", nil, "Entity to skip (repeatable)")
	f.StringArrayVar(&objects, "objects", nil, "Search only these entities (repeatable)")

	return cmd
} // }}}

// func newGetCmd {{{

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get entity...",
		Short: "Print the tags of each entity",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			es, err := entities(a, args)
			if err != nil {
				return err
			}

			for _, e := range es {
				t, err := a.tm.Get(cmd.Context(), e)
				if err != nil {
					return err
				}

				fmt.Fprintf(a.out, "%s\t%s\n", formatEntity(e), strings.Join(t, ", "))
			}

			return nil
		},
	}
} // }}}

// func newHasCmd {{{

func newHasCmd(a *app) *cobra.Command {
	var opts tags.MatchOptions

	cmd := &cobra.Command{
		Use:   "has entity tags...",
		Short: "Print true if the tags of the entity match",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			es, err := entities(a, args[:1])
			if err != nil {
				return err
			}

			ok, err := a.tm.Has(cmd.Context(), es[0], strings.Join(args[1:], ","), opts)
			if err != nil {
				return err
			}

			fmt.Fprintln(a.out, ok)

			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.MatchAny, "any", false, "Match if any tag matches")
	cmd.Flags().BoolVar(&opts.MatchExactly, "exact", false, "Match only exactly these tags")
	cmd.Flags().BoolVar(&opts.CaseInsensitive, "ci", false, "Ignore case")

	return cmd
} // }}}

// func newUpdateCmd {{{

func newUpdateCmd(a *app, use string, op tagmanager.Op, short string) *cobra.Command {
	var tf tagFlags

	cmd := &cobra.Command{
		Use:   use + " entity...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := tf.load()
			if err != nil {
				return err
			}

			es, err := entities(a, args)
			if err != nil {
				return err
			}

			return a.tm.Update(cmd.Context(), es, op, t)
		},
	}

	tf.add(cmd)

	return cmd
} // }}}

// func newClearCmd {{{

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear entity...",
		Short: "Remove every tag from each entity",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			es, err := entities(a, args)
			if err != nil {
				return err
			}

			return a.tm.ClearAllTags(cmd.Context(), es)
		},
	}
} // }}}

// func newApplyCmd {{{

func newApplyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "apply entity...",
		Short: "Resolve {#} and {id} within the stored tags of each entity",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			es, err := entities(a, args)
			if err != nil {
				return err
			}

			return a.tm.ApplyRules(cmd.Context(), es)
		},
	}
} // }}}

// func newCreateCmd {{{

func newCreateCmd(a *app) *cobra.Command {
	var tf tagFlags

	cmd := &cobra.Command{
		Use:   "create entity...",
		Short: "Create entities with the given tags, printing the tags each got",
		Long: `Create entities with the given tags, printing the tags each got.

Entities created together share each {id}, a {#} counts on from one entity to the next.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := tf.load()
			if err != nil {
				return err
			}

			es, err := entities(a, args)
			if err != nil {
				return err
			}

			got, err := a.tm.CreateMany(cmd.Context(), es, t)
			if err != nil {
				return err
			}

			for i, e := range es {
				fmt.Fprintf(a.out, "%s\t%s\n", formatEntity(e), strings.Join(got[i], ", "))
			}

			return nil
		},
	}

	tf.add(cmd)

	return cmd
} // }}}
