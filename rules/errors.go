//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// UnbuiltError reports builder chains that are started but never finished.
// Without Build the error is neither categorized nor reported.
func UnbuiltError(m dsl.Matcher) {
	m.Import("github.com/dpscience/ddrs4pals/internal/errors")

	m.Match(
		`{ $*_; errors.New($*_).$_($*_); $*_ }`,
		`{ $*_; errors.New($*_).$_($*_).$_($*_); $*_ }`,
		`{ $*_; errors.Newf($*_).$_($*_); $*_ }`,
		`{ $*_; errors.Newf($*_).$_($*_).$_($*_); $*_ }`,
	).
		Report("error builder chain is missing .Build()")
}

// PipelineErrors asks the pipeline packages to use the errors builder, so
// every failure carries a component and a category.
func PipelineErrors(m dsl.Matcher) {
	m.Match(`fmt.Errorf($*_)`).
		Where(m.File().PkgPath.Matches(`internal/(acquisition|forward|secrets)$`) &&
			!m.File().Name.Matches(`_test\.go$`)).
		Report("use errors.Newf(...).Component(...).Category(...).Build() in pipeline packages")
}

// StdoutLogging reports direct printing outside the cmd packages.
func StdoutLogging(m dsl.Matcher) {
	m.Match(`fmt.Println($*_)`, `fmt.Printf($*_)`, `log.Printf($*_)`, `log.Println($*_)`).
		Where(m.File().PkgPath.Matches(`/internal/`) && !m.File().Name.Matches(`_test\.go$`)).
		Report("use the module logger from logger.Global().Module(...)")
}
