package support

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/hashprobe/cmd/hashprobe/cmd"
	"github.com/MeKo-Tech/hashprobe/internal/npy"
)

// distinctCodes are four 4-bit codes at pairwise Hamming distance >= 2.
var distinctCodes = []float32{
	1, 1, 1, 1,
	-1, -1, -1, -1,
	1, -1, 1, -1,
	-1, 1, -1, 1,
}

// iRunCommand executes the command line in-process on a fresh root command.
// Placeholders like {db_codes} are replaced from Vars.
func (testCtx *TestContext) iRunCommand(command string) error {
	for k, v := range testCtx.Vars {
		command = strings.ReplaceAll(command, "{"+k+"}", v)
	}
	fields := strings.Fields(command)
	if len(fields) == 0 || fields[0] != "hashprobe" {
		return fmt.Errorf("commands must start with hashprobe: %q", command)
	}

	root := cmd.NewRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(fields[1:])

	testCtx.LastCommand = command
	testCtx.LastStartTime = time.Now()
	testCtx.LastError = root.ExecuteContext(context.Background())
	testCtx.LastDuration = time.Since(testCtx.LastStartTime)
	testCtx.LastOutput = stdout.String()
	testCtx.LastStderr = stderr.String()
	testCtx.LastExitCode = 0
	if testCtx.LastError != nil {
		testCtx.LastExitCode = 1
	}
	return nil
}

func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastError != nil {
		return fmt.Errorf("command %q failed: %w\nstderr: %s", testCtx.LastCommand, testCtx.LastError, testCtx.LastStderr)
	}
	return nil
}

func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastError == nil {
		return fmt.Errorf("command %q succeeded, expected failure\noutput: %s", testCtx.LastCommand, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldContain(text string) error {
	if !strings.Contains(testCtx.LastOutput, text) {
		return fmt.Errorf("output does not contain %q:\n%s", text, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldBe(text string) error {
	if got := strings.TrimSpace(testCtx.LastOutput); got != text {
		return fmt.Errorf("output is %q, expected %q", got, text)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldHaveLines(n int) error {
	got := len(strings.Split(strings.TrimSpace(testCtx.LastOutput), "\n"))
	if got != n {
		return fmt.Errorf("output has %d lines, expected %d:\n%s", got, n, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theErrorShouldMention(text string) error {
	if testCtx.LastError == nil {
		return errors.New("no error was returned")
	}
	if !strings.Contains(strings.ToLower(testCtx.LastError.Error()), strings.ToLower(text)) {
		return fmt.Errorf("error %q does not mention %q", testCtx.LastError, text)
	}
	return nil
}

func (testCtx *TestContext) modeShouldBeListedAs(mode int, family, param string) error {
	for _, line := range strings.Split(testCtx.LastOutput, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 || fields[0] != strconv.Itoa(mode) {
			continue
		}
		if fields[1] != family || strings.Join(fields[2:], " ") != param {
			return fmt.Errorf("mode %d listed as %q", mode, line)
		}
		return nil
	}
	return fmt.Errorf("mode %d not listed:\n%s", mode, testCtx.LastOutput)
}

func (testCtx *TestContext) theEnvironmentVariableIs(name, value string) error {
	testCtx.SetEnv(name, value)
	return nil
}

func (testCtx *TestContext) aConfigFileWith(content *godog.DocString) error {
	return os.WriteFile("hashprobe.yaml", []byte(content.Content), 0o644)
}

// aDatabaseOfDistinctCodes writes {db_codes} and {db_labels}: four distinct
// codes, item i in class i.
func (testCtx *TestContext) aDatabaseOfDistinctCodes() error {
	labels := make([]float32, 16)
	for i := range 4 {
		labels[i*4+i] = 1
	}
	if err := testCtx.writeArray("db_codes", []int{4, 4}, distinctCodes); err != nil {
		return err
	}
	return testCtx.writeArray("db_labels", []int{4, 4}, labels)
}

// theQueriesAreTheNegatedDatabase writes {neg_codes}: every code flipped, so
// each query's own item ranks last.
func (testCtx *TestContext) theQueriesAreTheNegatedDatabase() error {
	neg := make([]float32, len(distinctCodes))
	for i, v := range distinctCodes {
		neg[i] = -v
	}
	return testCtx.writeArray("neg_codes", []int{4, 4}, neg)
}

func (testCtx *TestContext) writeArray(name string, shape []int, data []float32) error {
	path := testCtx.Path(name + ".npy")
	if err := npy.WriteFile(path, shape, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	testCtx.Vars[name] = path
	return nil
}

// RegisterSteps registers every step definition.
func (testCtx *TestContext) RegisterSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRunCommand)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)
	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the output should be "([^"]*)"$`, testCtx.theOutputShouldBe)
	sc.Step(`^the output should have (\d+) lines$`, testCtx.theOutputShouldHaveLines)
	sc.Step(`^the error should mention "([^"]*)"$`, testCtx.theErrorShouldMention)
	sc.Step(`^mode (\d+) should be listed as "([^"]*)" with "([^"]*)"$`, testCtx.modeShouldBeListedAs)
	sc.Step(`^the environment variable "([^"]*)" is "([^"]*)"$`, testCtx.theEnvironmentVariableIs)
	sc.Step(`^a config file with:$`, testCtx.aConfigFileWith)
	sc.Step(`^a database of 4 distinct codes with one class each$`, testCtx.aDatabaseOfDistinctCodes)
	sc.Step(`^the queries are the negated database$`, testCtx.theQueriesAreTheNegatedDatabase)
}
