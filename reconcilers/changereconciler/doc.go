/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package changereconciler keeps tasks in step with the change sets on
// GitHub and GitLab. The reconciliation flow for one update is:
//
//  1. Find the projects whose context agent watches the repository
//  2. Closed or merged: complete the project's task
//  3. Known change set: refresh its snapshot and re-queue a finished task
//  4. New change set: create a task, store its snapshot and queue it
//
// # Basic Usage
//
//	rec, err := changereconciler.New(store, store, store, lifecycle,
//	    changereconciler.WithPlatform(githubClient),
//	    changereconciler.WithPlatform(gitlabClient),
//	    changereconciler.WithPublisher(bus),
//	)
//
//	// From a webhook
//	err = rec.OnExternalItemUpdated(ctx, update)
//
//	// Periodically, to pick up change sets whose webhooks were missed
//	created, err := rec.Sweep(ctx)
package changereconciler
