// Copyright 2019 Intel Corporation. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log implements a small leveled, per-source logging facility
// with a pluggable backend.
//
// Every subsystem of this module (discovery backends, topology build,
// restrict/duplicate, binding) gets its own named logger obtained with
// log.Get("<source>"), so verbosity can be toggled per subsystem
// instead of with one global switch. A single process-wide backend
// receives the formatted messages; the default backend prints to
// stdout, but tests and embedders can register their own.
package log
