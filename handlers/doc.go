// Package handlers registers the job definitions that turn generation jobs
// into Generation Client calls and write the outcome into result records.
//
// Every job type has a JSON payload naming its target record:
//
//	generation   {"resultId", "prompt"}
//	improvement  {"targetId", "code", "feedback"}
//	validation   {"targetId", "code"}
//	explanation  {"targetId", "code"}
//	tests        {"targetId", "code"}
//
// A missing record or an empty required field is a permanent failure.
// Generation client errors keep their own classification.
package handlers
