package stub

import (
	"strings"
	"testing"

	"essaygrade/internal/grading/model"
	"essaygrade/internal/testutil"
	appErr "essaygrade/pkg/errors"
)

func TestParseSheet(t *testing.T) {
	data := "\ufeffStudent ID,Name,Answer\nS1,Ann,first answer\nS2,Bob\n"
	sh, err := parseSheet([]byte(data))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(sh.rows), 2)
	testutil.AssertEqual(t, sh.header[0], "Student ID")
	testutil.AssertEqual(t, sh.mapping[colStudentID], "Student ID")
	testutil.AssertEqual(t, sh.mapping[colName], "Name")
	testutil.AssertEqual(t, sh.mapping[colAnswer], "Answer")
	testutil.AssertEqual(t, sh.value(sh.rows[0], colAnswer), "first answer")
	testutil.AssertEqual(t, sh.value(sh.rows[1], colAnswer), "")
}

func TestParseSheetRejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"header only", []byte("student_id,answer\n")},
		{"invalid utf-8", []byte("student_id,answer\n1,\xff\xfe\n")},
		{"bad quoting", []byte("student_id,answer\n1,\"open\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSheet(tt.data)
			testutil.AssertCode(t, err, appErr.InvalidFormat)
		})
	}
}

func TestDetectIssues(t *testing.T) {
	sh, err := parseSheet([]byte("student_id,answer\nS1,text\n,text\nS3,  \n"))
	testutil.AssertNoError(t, err)
	issues := sh.detectIssues()
	testutil.AssertEqual(t, len(issues), 2)
	testutil.AssertEqual(t, issues[0], "1 rows have a blank student id")
	testutil.AssertEqual(t, issues[1], "1 rows have a blank answer")

	sh, err = parseSheet([]byte("foo,bar\n1,2\n"))
	testutil.AssertNoError(t, err)
	issues = sh.detectIssues()
	testutil.AssertEqual(t, len(issues), 2)
	testutil.AssertTrue(t, strings.Contains(issues[0], "student_id"), "missing id column is reported")
}

func TestPreviewCapsSamples(t *testing.T) {
	var b strings.Builder
	b.WriteString("student_id,answer\n")
	for i := 0; i < 8; i++ {
		b.WriteString("S,text\n")
	}
	sh, err := parseSheet([]byte(b.String()))
	testutil.AssertNoError(t, err)
	p := sh.preview()
	testutil.AssertEqual(t, p.TotalRows, 8)
	testutil.AssertEqual(t, len(p.SampleRows), model.MaxPreviewRows)
	testutil.AssertEqual(t, len(p.DetectedIssues), 0)
}
