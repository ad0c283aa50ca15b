// Package transcode coordinates multi-preset transcode requests.
//
// A request is validated and admitted synchronously by [Coordinator.Start];
// nothing is allocated for a request that fails validation. The request
// then runs in the background as a [Run]:
//
//	run, err := coord.Start(ctx, transcode.Request{Input: in, Presets: []string{"1080p", "720p"}})
//	if err != nil {
//		return err // validation or resource_exhausted
//	}
//	for ev := range run.Events() {
//		// progress events tagged by preset, then one terminal event
//	}
//	result := run.Wait()
//
// Presets run one at a time by default. A failing preset does not stop the
// others unless the request sets FailFast. In parallel mode the request
// runs on as many admission slots as it could take when it started, up to
// one per preset.
//
// Every job gets its own workspace, released before the job's outcome is
// reported. Completed outputs are moved to the artifact store first.
package transcode
