// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


// Package logging provides the log writer of the command line tool.
// It writes to an output stream, and optionally also to a file.
// Does not add prefixes, or force newlines.
package logging

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
)

// A log writer which tees to an optional file. Safe for concurrent use
type Writer struct {
	mu      sync.Mutex
	out     io.Writer
	file    *bufio.Writer
	fileOS  *os.File
}

// Creates a log writer for the given output stream
func New(out io.Writer) *Writer { return &Writer{out: out} }

// Singleton log writer on stdout
var std=New(os.Stdout)

// Returns the singleton log writer
func Default() *Writer { return std }

func (w *Writer) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n, err=w.out.Write(p)
	if err!=nil || w.file==nil { return n, err }
	return w.file.Write(p)
}

// Enables logging to the given file, closing any previous one
func (w *Writer) AlsoToFile(fileName string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err:=w.closeFile(); err!=nil { return err }
	f, err:=os.OpenFile(fileName, os.O_CREATE | os.O_TRUNC | os.O_WRONLY, 0666)
	if err!=nil { return err }
	w.fileOS, w.file=f, bufio.NewWriter(f)
	return nil
}

func (w *Writer) closeFile() error {
	if w.file==nil { return nil }
	err:=w.file.Flush()
	if e:=w.fileOS.Close(); err==nil { err=e }
	w.file, w.fileOS=nil, nil
	return err
}

func (w *Writer) Printf(format string, args ...interface{}) (n int, err error) {
	return fmt.Fprintf(w, format, args...)
}

func (w *Writer) Println(args ...interface{}) (n int, err error) {
	return fmt.Fprintln(w, args...)
}

// Flushes the log file to disk
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file==nil { return nil }
	if err:=w.file.Flush(); err!=nil { return err }
	return w.fileOS.Sync()
}

// Flushes and closes the log file, if any. Output continues on the stream
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeFile()
}


func AlsoToFile(fileName string) error { return std.AlsoToFile(fileName) }

func Printf(format string, args ...interface{}) (n int, err error) { return std.Printf(format, args...) }

func Println(args ...interface{}) (n int, err error) { return std.Println(args...) }

func Sync() error { return std.Sync() }

// Logs the message, closes the log file and exits with status 1
func Fatalf(format string, args ...interface{}) {
	std.Printf(format, args...)
	std.Close()
	os.Exit(1)
}
