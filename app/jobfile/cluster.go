package jobfile

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// clusterScriptSuffix matches the part after the job id, as in 1234567.dyn-dmp.x99xx123.16.sh
const clusterScriptSuffix = `\.[a-z]{3}-[a-z]{3}\.[a-z]\d{2}[a-z]{2}\d{3}\.\d{1,2}\.sh$`

// FindClusterScript returns the first name in names which is a cluster script of the job, empty if none
func FindClusterScript(id int64, names []string) string {
	re := regexp.MustCompile(fmt.Sprintf(`^%d%s`, id, clusterScriptSuffix))
	for _, name := range names {
		if re.MatchString(name) {
			return name
		}
	}
	return ""
}

// ScratchDir extracts the cluster scratch directory from the cluster script.
// The script is expected to start with a line like "cd /W01_cluster_scratch/1234567*",
// the trailing glob is removed. Returns empty string if the first line has no such command.
func ScratchDir(scriptPath string) (string, error) {
	fh, err := os.Open(scriptPath) //nolint:gosec // script is located in the job's submission directory
	if err != nil {
		return "", fmt.Errorf("failed to open cluster script: %w", err)
	}
	defer fh.Close()

	line, err := bufio.NewReader(fh).ReadString('\n')
	if err != nil && line == "" {
		return "", nil // empty script
	}
	if !strings.Contains(line, "cd") {
		return "", nil
	}
	parts := strings.Split(line, " ")
	if len(parts) < 2 {
		return "", nil
	}
	dir := strings.TrimSpace(parts[1])
	return strings.TrimSuffix(dir, "*"), nil
}
