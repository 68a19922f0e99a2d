//go:build mage

package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

// Screen builds the CLI and screens every structure file in structures/,
// seeding qualifying candidates into the pool.
func Screen() error {
	mg.Deps(Build)

	files, err := filepath.Glob("structures/*.yaml")
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("[screen] No structure files in structures/; run mage init first.")
		return nil
	}

	bin := filepath.Join(binDir, binName)
	for _, f := range files {
		report := filepath.Join("output", "reports", filepath.Base(f))
		cmd := exec.Command(bin, "screen", f, "--seed-pool", "--report", report)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("screening %s: %w", f, err)
		}
	}
	return nil
}

// Learn builds the CLI and runs the active-learning loop over the pool
// using the first structure file in structures/ as the evaluation source.
func Learn() error {
	mg.Deps(Build)

	files, err := filepath.Glob("structures/*.yaml")
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no structure files in structures/; run mage screen first")
	}

	bin := filepath.Join(binDir, binName)
	cmd := exec.Command(bin, "run", files[0])
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
