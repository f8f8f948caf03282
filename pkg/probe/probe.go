// Copyright (c) 2015-2025 Cask Contributors.
//
// This file is part of Cask Object Storage stack
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package probe implements a simple mechanism to trace and return errors
// in large programs.
package probe

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

var (
	// Root path of the project's source.
	rootPath string

	// App specific info to be included reporting.
	appInfo map[string]string

	// Lock protecting appInfo.
	appInfoMutex sync.RWMutex
)

// Init initializes probe. It is typically called once from the main
// package during startup to figure out the project's root source path.
func Init() {
	// Root path is automatically determined from the calling function's
	// source file location.
	_, file, _, ok := runtime.Caller(1)
	if ok {
		rootPath = filepath.Dir(file)
	}
	appInfo = make(map[string]string)
}

// SetAppInfo sets app speific key:value to report additionally during call trace dump.
func SetAppInfo(key, value string) {
	appInfoMutex.Lock()
	defer appInfoMutex.Unlock()
	if appInfo == nil {
		appInfo = make(map[string]string)
	}
	appInfo[key] = value
}

// GetSysInfo returns useful system statistics.
func GetSysInfo() map[string]string {
	host, e := os.Hostname()
	if e != nil {
		host = ""
	}
	return map[string]string{
		"host.name":      host,
		"host.os":        runtime.GOOS,
		"host.arch":      runtime.GOARCH,
		"host.lang":      runtime.Version(),
		"host.cpus":      fmt.Sprintf("%d", runtime.NumCPU()),
		"mem.heap.total": "unknown",
	}
}

// TracePoint container for individual trace entries in overall call trace.
type TracePoint struct {
	Line     int                 `json:"line,omitempty"`
	Filename string              `json:"file,omitempty"`
	Function string              `json:"func,omitempty"`
	Env      map[string][]string `json:"env,omitempty"`
}

// Error implements tracing error functionality.
type Error struct {
	lock      sync.RWMutex
	Cause     error             `json:"cause,omitempty"`
	CallTrace []TracePoint      `json:"trace,omitempty"`
	SysInfo   map[string]string `json:"sysinfo,omitempty"`
}

// NewError function instantiates an error probe for tracing.
// Default "error" (golang's error interface) is injected in only once.
// Rest of the time, you trace the return path with Probe.Trace and
// finally handle reporting or quitting at the top level.
func NewError(e error) *Error {
	if e == nil {
		return nil
	}
	err := &Error{lock: sync.RWMutex{}, Cause: e, CallTrace: []TracePoint{}, SysInfo: GetSysInfo()}
	return err.trace() // Skip NewError and only instead register the NewError's caller.
}

// Trace records the point at which it is invoked.
// Stack traces are important for debugging purposes.
func (e *Error) Trace(fields ...string) *Error {
	if e == nil {
		return nil
	}
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.trace(fields...)
}

// internal trace - records the point at which it is invoked.
// Stack traces are important for debugging purposes.
func (e *Error) trace(fields ...string) *Error {
	pc, file, line, _ := runtime.Caller(2)
	function := runtime.FuncForPC(pc).Name()
	_, function = filepath.Split(function)
	file = strings.TrimPrefix(file, rootPath+string(os.PathSeparator)) // trims project's root path.
	tp := TracePoint{}
	if len(fields) > 0 {
		tp = TracePoint{Line: line, Filename: file, Function: function, Env: map[string][]string{"Tags": fields}}
	} else {
		tp = TracePoint{Line: line, Filename: file, Function: function}
	}
	e.CallTrace = append(e.CallTrace, tp)
	return e
}

// Untrace erases last known trace entry.
func (e *Error) Untrace() *Error {
	if e == nil {
		return nil
	}
	e.lock.Lock()
	defer e.lock.Unlock()
	l := len(e.CallTrace)
	if l == 0 {
		return nil
	}
	e.CallTrace = e.CallTrace[:l-1]
	return e
}

// ToGoError returns original error message.
func (e *Error) ToGoError() error {
	if e == nil || e.Cause == nil {
		return nil
	}
	return e.Cause
}

// Error returns error string.
func (e *Error) Error() string {
	return e.String()
}

// String returns error message.
func (e *Error) String() string {
	if e == nil || e.Cause == nil {
		return "<nil>"
	}
	e.lock.RLock()
	defer e.lock.RUnlock()

	if e.Cause != nil {
		str := e.Cause.Error() + "\n"
		callLen := len(e.CallTrace)
		for i := callLen - 1; i >= 0; i-- {
			if e.CallTrace[i].Env != nil {
				str += fmt.Sprintf(" (%d) %s:%d %s(..) Tags: [%s]\n",
					i, e.CallTrace[i].Filename, e.CallTrace[i].Line, e.CallTrace[i].Function,
					strings.Join(e.CallTrace[i].Env["Tags"], ", "))
			} else {
				str += fmt.Sprintf(" (%d) %s:%d %s(..)\n",
					i, e.CallTrace[i].Filename, e.CallTrace[i].Line, e.CallTrace[i].Function)
			}
		}

		str += " Host:" + e.SysInfo["host.name"] + " | "
		str += "OS:" + e.SysInfo["host.os"] + " | "
		str += "Arch:" + e.SysInfo["host.arch"] + " | "
		str += "Lang:" + e.SysInfo["host.lang"] + " | "
		str += "Cpus:" + e.SysInfo["host.cpus"] + " | "

		appInfoMutex.RLock()
		for key, value := range appInfo {
			str += key + ":" + value + " | "
		}
		appInfoMutex.RUnlock()

		str = strings.TrimSuffix(str, " | ")
		return str
	}
	return "<nil>"
}
