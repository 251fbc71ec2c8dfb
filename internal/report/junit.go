// Package report writes JUnit XML test reports. A report is produced for
// every test job regardless of outcome, so CI artifact collection always
// has something to pick up.
package report

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// Case is one executed unit inside a suite: a selected target or a script
// step. A non-empty Failure marks the case as failed.
type Case struct {
	Name     string
	Class    string
	Duration time.Duration
	Failure  string
}

// Suite is the report of one job.
type Suite struct {
	Name  string
	Cases []Case
}

type xmlFailure struct {
	Message string `xml:"message,attr"`
	Body    string `xml:",cdata"`
}

type xmlCase struct {
	Name    string      `xml:"name,attr"`
	Class   string      `xml:"classname,attr"`
	Time    string      `xml:"time,attr"`
	Failure *xmlFailure `xml:"failure,omitempty"`
}

type xmlSuite struct {
	Name     string    `xml:"name,attr"`
	Tests    int       `xml:"tests,attr"`
	Failures int       `xml:"failures,attr"`
	Time     string    `xml:"time,attr"`
	Cases    []xmlCase `xml:"testcase"`
}

type xmlSuites struct {
	XMLName  xml.Name   `xml:"testsuites"`
	Tests    int        `xml:"tests,attr"`
	Failures int        `xml:"failures,attr"`
	Suites   []xmlSuite `xml:"testsuite"`
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}

// Marshal renders the suites as a JUnit XML document.
func Marshal(suites ...Suite) ([]byte, error) {
	doc := xmlSuites{}
	for _, s := range suites {
		xs := xmlSuite{Name: s.Name, Tests: len(s.Cases)}
		var total time.Duration
		for _, c := range s.Cases {
			xc := xmlCase{
				Name:  c.Name,
				Class: c.Class,
				Time:  seconds(c.Duration),
			}
			if c.Failure != "" {
				xc.Failure = &xmlFailure{Message: "failed", Body: c.Failure}
				xs.Failures++
			}
			total += c.Duration
			xs.Cases = append(xs.Cases, xc)
		}
		xs.Time = seconds(total)
		doc.Tests += xs.Tests
		doc.Failures += xs.Failures
		doc.Suites = append(doc.Suites, xs)
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshal junit report")
	}
	return append([]byte(xml.Header), append(body, '\n')...), nil
}

// Write renders the suites and writes them to path, creating parent
// directories as needed.
func Write(path string, suites ...Suite) error {
	data, err := Marshal(suites...)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create report dir %s", dir)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write report %s", path)
	}
	return nil
}
