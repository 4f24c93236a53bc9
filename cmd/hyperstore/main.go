// Package main implements the hyperstore command, a thin inspection and
// maintenance surface over a hypergraph database:
//
//	hyperstore stats hyper:///var/data/graph
//	hyperstore check hyper:///var/data/graph
//	hyperstore print hyper:///var/data/graph 'a@'
//	hyperstore dump  hyper:///var/data/graph 'k@'
//	hyperstore clear hyper:///var/data/graph --force
//
// Everything here is a wrapper; the semantics live in internal/engine.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dreamware/hyperstore/internal/engine"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "hyperstore",
		Short:         "Inspect and maintain a hypergraph database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"log engine activity")

	logger := func() *zap.Logger {
		if !verbose {
			return zap.NewNop()
		}
		l, err := zap.NewDevelopment()
		if err != nil {
			return zap.NewNop()
		}
		return l
	}

	openRO := func(uri string) (*engine.Storage, error) {
		return engine.Open(uri, &engine.Options{ReadOnly: true, Logger: logger()})
	}

	root.AddCommand(&cobra.Command{
		Use:   "stats <uri>",
		Short: "Print the database stats report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openRO(args[0])
			if err != nil {
				return err
			}
			defer s.Close()
			rep, err := s.Monitor()
			if err != nil {
				return err
			}
			fmt.Print(rep)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "check <uri>",
		Short: "Scan for value records whose atom is missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openRO(args[0])
			if err != nil {
				return err
			}
			defer s.Close()
			bad, err := s.Check()
			if err != nil {
				return err
			}
			if len(bad) == 0 {
				fmt.Println("ok")
				return nil
			}
			for _, k := range bad {
				fmt.Println("dangling:", k)
			}
			return fmt.Errorf("%d dangling value records", len(bad))
		},
		Args: cobra.ExactArgs(1),
	})

	root.AddCommand(&cobra.Command{
		Use:   "print <uri> <prefix>",
		Short: "Print records under a key prefix",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openRO(args[0])
			if err != nil {
				return err
			}
			defer s.Close()
			return s.PrintRange(os.Stdout, args[1])
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "dump <uri> <prefix>",
		Short: "Dump records under a key prefix with bytes escaped",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openRO(args[0])
			if err != nil {
				return err
			}
			defer s.Close()
			return s.DumpRange(os.Stdout, args[1])
		},
	})

	var force bool
	clearCmd := &cobra.Command{
		Use:   "clear <uri>",
		Short: "Destroy every record in the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("refusing to destroy %s without --force", args[0])
			}
			s, err := engine.Open(args[0], &engine.Options{Logger: logger()})
			if err != nil {
				return err
			}
			defer s.Close()
			return s.KillData()
		},
	}
	clearCmd.Flags().BoolVar(&force, "force", false, "actually destroy the data")
	root.AddCommand(clearCmd)

	return root
}
