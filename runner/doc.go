/*
Package runner wraps workflow runs with the bookkeeping around them.

Logged executes a workflow and hands a LogEntry to a LogSink once the run
ends, whatever its outcome. Status is "success" for a completed run,
"failure" when the run was rejected with a client error and "error" for
everything else. Outputs whose JSON form exceeds the configured size are
replaced by {"truncated": true}.

Tester runs a workflow against an expected output and reports a
pass/fail verdict with a textual diff.
*/
package runner
