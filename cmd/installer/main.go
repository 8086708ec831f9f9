// Command installer builds cmd/minic with version metadata stamped in and
// copies the binary onto the PATH.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const versionPkg = "minic/pkg/version"

func main() {
	customPath := flag.String("path", "", "Custom install directory")
	release := flag.String("version", "", "Version string to stamp into the binary")
	flag.Parse()

	repoRoot, err := os.Getwd()
	if err != nil {
		exitWithError("unable to determine working directory", err)
	}

	binaryName := "minic"
	if runtime.GOOS == "windows" {
		binaryName += ".exe"
	}

	buildOutput := filepath.Join(repoRoot, binaryName)

	fmt.Println("Building minic...")
	buildCmd := exec.Command("go", "build", "-ldflags", ldflags(repoRoot, *release), "-o", buildOutput, "./cmd/minic")
	buildCmd.Stdout = os.Stdout
	buildCmd.Stderr = os.Stderr
	buildCmd.Dir = repoRoot
	if err := buildCmd.Run(); err != nil {
		exitWithError("go build failed", err)
	}
	defer os.Remove(buildOutput)

	targetDir := *customPath
	if targetDir == "" {
		targetDir = defaultInstallDir()
	}

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		exitWithError("unable to create install directory", err)
	}

	destPath := filepath.Join(targetDir, binaryName)
	fmt.Printf("Installing to %s\n", destPath)

	if err := copyFile(buildOutput, destPath); err != nil {
		exitWithError("failed to copy binary (try -path or elevated permissions)", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(destPath, 0o755); err != nil {
			exitWithError("failed to set executable bit", err)
		}
	}

	fmt.Println("minic installed.")
	fmt.Println("Run 'minic version' to check the binary on your PATH.")
}

// ldflags stamps build date, commit and, when given, the release version.
func ldflags(repoRoot, release string) string {
	flags := []string{
		fmt.Sprintf("-X %s.BuildDate=%s", versionPkg, time.Now().UTC().Format(time.RFC3339)),
		fmt.Sprintf("-X %s.GitCommit=%s", versionPkg, gitCommit(repoRoot)),
	}
	if release != "" {
		flags = append(flags, fmt.Sprintf("-X %s.Version=%s", versionPkg, release))
	}
	return strings.Join(flags, " ")
}

func gitCommit(repoRoot string) string {
	cmd := exec.Command("git", "rev-parse", "--short", "HEAD")
	cmd.Dir = repoRoot
	out, err := cmd.Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}

func defaultInstallDir() string {
	switch runtime.GOOS {
	case "windows":
		if base := os.Getenv("LOCALAPPDATA"); base != "" {
			return filepath.Join(base, "Programs", "minic")
		}
		return filepath.Join(os.TempDir(), "minic")
	default:
		if os.Geteuid() != 0 {
			if home, err := os.UserHomeDir(); err == nil {
				return filepath.Join(home, ".local", "bin")
			}
		}
		return "/usr/local/bin"
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}

	return out.Sync()
}

func exitWithError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
