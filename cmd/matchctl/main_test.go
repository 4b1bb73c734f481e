package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/matching"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jobsCSV = `job_link,job_title,job_skills
a,Python Developer,"python, django, rest apis"
b,Java Engineer,"java, spring, microservices"
c,Data Analyst,"sql, excel, tableau"
`

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRankLocalJSON(t *testing.T) {
	csvPath := writeFile(t, "jobs.csv", jobsCSV)
	resume := writeFile(t, "resume.txt", "Experienced Python developer with django")

	out, err := execute(t, "", "rank", "--csv", csvPath, "--resume", resume,
		"--strategy", "tfidf", "--top-k", "2", "--sample", "0", "--json")
	require.NoError(t, err)

	var resp matching.MatchResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Matches, 2)
	assert.Equal(t, 0, resp.Matches[0].Index)
	assert.InDelta(t, 1.0, resp.Matches[0].Score, 1e-9)
	assert.InDelta(t, 0.0, resp.Matches[1].Score, 1e-9)
	assert.Equal(t, "Python Developer python, django, rest apis", resp.Matches[0].Preview)
}

func TestRankLocalTableFromStdin(t *testing.T) {
	csvPath := writeFile(t, "jobs.csv", jobsCSV)

	out, err := execute(t, "java spring developer", "rank", "--csv", csvPath, "--resume", "-",
		"--strategy", "BM25", "--top-k", "1", "--sample", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "RANK")
	assert.Contains(t, out, "Java Engineer")
	assert.Contains(t, out, "bm25 ranked in")
}

func TestRankRejectsUnknownStrategy(t *testing.T) {
	csvPath := writeFile(t, "jobs.csv", jobsCSV)
	resume := writeFile(t, "resume.txt", "python")

	_, err := execute(t, "", "rank", "--csv", csvPath, "--resume", resume, "--strategy", "word2vec")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown strategy")
}

func TestRankRequiresResume(t *testing.T) {
	_, err := execute(t, "", "rank")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resume")
}

func TestStrategiesLocal(t *testing.T) {
	out, err := execute(t, "", "strategies")
	require.NoError(t, err)
	assert.Equal(t, "tfidf (tf-idf)\nbm25\nembedding (bert)\nentity (ner)\n", out)
}

func TestExperience(t *testing.T) {
	posting := writeFile(t, "posting.txt", "Needs 3 years of experience in Go and 7 yrs of experience overall")
	none := writeFile(t, "none.txt", "Junior role")

	out, err := execute(t, "", "experience", posting, none)
	require.NoError(t, err)
	assert.Equal(t, posting+"\t7\n"+none+"\t0\n", out)

	out, err = execute(t, "5 years of experience", "experience", "-")
	require.NoError(t, err)
	assert.Equal(t, "-\t5\n", out)
}

func TestExperienceNeedsArgs(t *testing.T) {
	_, err := execute(t, "", "experience")
	assert.Error(t, err)
}
