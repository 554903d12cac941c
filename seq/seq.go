// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

// Package seq contains sequence transformations that are evaluated
// using one unit of execution per element.
package seq
