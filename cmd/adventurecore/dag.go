package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sherndon-labs/adventurecore/internal/orchestrator"
)

var dagCmd = &cobra.Command{
	Use:   "dag",
	Short: "Work with standalone DAG configs outside a full story loop run",
}

var dagValidateCmd = &cobra.Command{
	Use:   "validate <name>",
	Short: "Resolve and validate a DAG config (spec §3 DAG Config invariants)",
	Args:  cobra.ExactArgs(1),
	RunE:  runDAGValidate,
}

var dagRunCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "Run a standalone DAG config to completion and print its results",
	Args:  cobra.ExactArgs(1),
	RunE:  runDAGRun,
}

func init() {
	dagCmd.AddCommand(dagValidateCmd)
	dagCmd.AddCommand(dagRunCmd)
}

func runDAGValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	source := orchestrator.ConfigSource{Dir: cfg.DAGConfigDir}

	dagCfg, err := source.Resolve(args[0])
	if err != nil {
		return err
	}
	if err := dagCfg.Validate(); err != nil {
		return err
	}
	fmt.Printf("%s: valid (%d stages)\n", dagCfg.ID, len(dagCfg.Stages))
	return nil
}

func runDAGRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	h, err := rt.orch.StartAdventure(args[0], orchestrator.StartOptions{})
	if err != nil {
		return err
	}

	results, runErr := h.Wait()
	out, err := json.MarshalIndent(map[string]any{"id": h.ID, "results": results}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return runErr
}
