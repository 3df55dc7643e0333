// Package flatfile reads and writes delimited text files one record per
// line.
//
// Reader tokenizes an input resource into Records without interpreting the
// fields. Writer renders items into lines and appends them to an output file
// one chunk at a time. Both acquire their resource in Open and release it in
// Close so they can be driven by the batch step engine.
package flatfile
