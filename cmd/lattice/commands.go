package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jacentio/lattice/kv"
	"github.com/jacentio/lattice/store"
)

var (
	createCmd = &cobra.Command{
		Use:   "create [table] [json]",
		Short: "Creates one record, or every record of a JSON array, in one batch",
		Args:  cobra.ExactArgs(2),
		RunE: withDB(func(cmd *cobra.Command, args []string) error {
			t, err := db.Table(args[0])
			if err != nil {
				return err
			}
			items, err := decodeItems(args[1])
			if err != nil {
				return err
			}
			records, err := t.CreateMany(cmd.Context(), items)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), records)
		}),
	}

	upsertCmd = &cobra.Command{
		Use:   "upsert [table] [json]",
		Short: "Creates the records whose primary key is not taken yet and prints them",
		Args:  cobra.ExactArgs(2),
		RunE: withDB(func(cmd *cobra.Command, args []string) error {
			t, err := db.Table(args[0])
			if err != nil {
				return err
			}
			items, err := decodeItems(args[1])
			if err != nil {
				return err
			}
			records, err := t.UpsertMany(cmd.Context(), items)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), records)
		}),
	}

	findCmd = &cobra.Command{
		Use:   "find [table]",
		Short: "Prints every record matching the query",
		Args:  cobra.ExactArgs(1),
		RunE: withDB(func(cmd *cobra.Command, args []string) error {
			t, err := db.Table(args[0])
			if err != nil {
				return err
			}
			q, err := queryFromFlags(cmd)
			if err != nil {
				return err
			}
			records, err := t.FindMany(cmd.Context(), q)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), records)
		}),
	}

	firstCmd = &cobra.Command{
		Use:   "first [table]",
		Short: "Prints the first record matching the query",
		Args:  cobra.ExactArgs(1),
		RunE: withDB(func(cmd *cobra.Command, args []string) error {
			t, err := db.Table(args[0])
			if err != nil {
				return err
			}
			q, err := queryFromFlags(cmd)
			if err != nil {
				return err
			}
			record, err := t.FindFirst(cmd.Context(), q)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), record)
		}),
	}

	updateCmd = &cobra.Command{
		Use:   "update [table] [json]",
		Short: "Merges the JSON object into the first record matching --where",
		Args:  cobra.ExactArgs(2),
		RunE: withDB(func(cmd *cobra.Command, args []string) error {
			t, err := db.Table(args[0])
			if err != nil {
				return err
			}
			where, err := whereFromFlags(cmd)
			if err != nil {
				return err
			}
			data, err := decodeObject(args[1])
			if err != nil {
				return err
			}
			if many, _ := cmd.Flags().GetBool("many"); many {
				records, err := t.UpdateMany(cmd.Context(), where, data)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), records)
			}
			record, err := t.Update(cmd.Context(), where, data)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), record)
		}),
	}

	deleteCmd = &cobra.Command{
		Use:   "delete [table]",
		Short: "Deletes the first record matching --where",
		Args:  cobra.ExactArgs(1),
		RunE: withDB(func(cmd *cobra.Command, args []string) error {
			t, err := db.Table(args[0])
			if err != nil {
				return err
			}
			where, err := whereFromFlags(cmd)
			if err != nil {
				return err
			}
			if many, _ := cmd.Flags().GetBool("many"); many {
				n, err := t.DeleteMany(cmd.Context(), where)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]int{"deleted": n})
			}
			record, err := t.Delete(cmd.Context(), where)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), record)
		}),
	}

	tablesCmd = &cobra.Command{
		Use:   "tables",
		Short: "Lists the tables of the schema and the key prefixes they occupy",
		Args:  cobra.NoArgs,
		RunE: withDB(func(cmd *cobra.Command, _ []string) error {
			type tableInfo struct {
				Name         string   `json:"name"`
				Primary      string   `json:"primary,omitempty"`
				Prefixes     []kv.Key `json:"prefixes"`
				ReferencedBy []string `json:"referencedBy,omitempty"`
			}
			out := make([]tableInfo, 0, len(db.Tables()))
			for _, name := range db.Tables() {
				t, err := db.Table(name)
				if err != nil {
					return err
				}
				info := tableInfo{Name: name}
				if f, ok := t.Schema().Primary(); ok {
					info.Primary = f.Name
				}
				info.Prefixes = t.Prefixes()
				for _, ref := range db.Registry().ReferencedBy(name) {
					info.ReferencedBy = append(info.ReferencedBy, ref.SourceTable+"."+ref.Name)
				}
				out = append(out, info)
			}
			return printJSON(cmd.OutOrStdout(), out)
		}),
	}
)

func init() {
	for _, c := range []*cobra.Command{findCmd, firstCmd} {
		c.Flags().String("where", "", wrapString("Equality predicates as a JSON object"))
		c.Flags().StringSlice("select", nil, wrapString("Fields to keep, comma separated"))
		c.Flags().StringSlice("include", nil, wrapString("Relations to resolve. Nested relations are joined with dots, e.g. posts.author"))
		c.Flags().StringSlice("order", nil, wrapString("Sort fields, each optionally suffixed with :desc"))
		c.Flags().StringSlice("distinct", nil, wrapString("Keep the first record of each distinct combination of these fields"))
		c.Flags().Int("skip", 0, wrapString("Records to skip"))
		c.Flags().Int("take", 0, wrapString("Maximum number of records, 0 for all"))
	}
	for _, c := range []*cobra.Command{updateCmd, deleteCmd} {
		c.Flags().String("where", "", wrapString("Equality predicates as a JSON object"))
		c.Flags().Bool("many", false, wrapString("Apply to every matching record instead of the first"))
	}
}

func whereFromFlags(cmd *cobra.Command) (map[string]any, error) {
	raw, _ := cmd.Flags().GetString("where")
	if raw == "" {
		return nil, nil
	}
	where, err := decodeObject(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid --where: %w", err)
	}
	return where, nil
}

func queryFromFlags(cmd *cobra.Command) (store.Query, error) {
	where, err := whereFromFlags(cmd)
	if err != nil {
		return store.Query{}, err
	}
	flags := cmd.Flags()
	sel, _ := flags.GetStringSlice("select")
	include, _ := flags.GetStringSlice("include")
	order, _ := flags.GetStringSlice("order")
	distinct, _ := flags.GetStringSlice("distinct")
	skip, _ := flags.GetInt("skip")
	take, _ := flags.GetInt("take")

	return store.Query{
		Where:    where,
		Select:   sel,
		Include:  parseInclude(include),
		OrderBy:  parseOrder(order),
		Distinct: distinct,
		Skip:     skip,
		Take:     take,
	}, nil
}

// parseInclude turns dotted relation paths into nested include queries.
func parseInclude(paths []string) map[string]*store.Query {
	if len(paths) == 0 {
		return nil
	}
	root := map[string]*store.Query{}
	for _, path := range paths {
		level := root
		names := strings.Split(path, ".")
		for i, name := range names {
			q := level[name]
			if q == nil {
				q = &store.Query{}
				level[name] = q
			}
			if i == len(names)-1 {
				break
			}
			if q.Include == nil {
				q.Include = map[string]*store.Query{}
			}
			level = q.Include
		}
	}
	return root
}

func parseOrder(specs []string) []store.Order {
	var out []store.Order
	for _, spec := range specs {
		field, dir, _ := strings.Cut(spec, ":")
		if strings.EqualFold(dir, "desc") {
			out = append(out, store.Desc(field))
		} else {
			out = append(out, store.Asc(field))
		}
	}
	return out
}

func decodeObject(raw string) (map[string]any, error) {
	var obj map[string]any
	if err := decode(raw, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// decodeItems accepts a single JSON object or an array of objects.
func decodeItems(raw string) ([]map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "[") {
		var items []map[string]any
		if err := decode(raw, &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	return []map[string]any{obj}, nil
}

func decode(raw string, v any) error {
	d := json.NewDecoder(strings.NewReader(raw))
	d.UseNumber()
	if err := d.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}
