// Package sitecapture renders web pages in a headless browser and exports
// them as PDF documents or PNG and JPEG images.
//
// # Quick start
//
// Describe the capture with a [Job] and run it:
//
//	job, err := sitecapture.NewJob("https://example.com", "example.pdf",
//	    sitecapture.WithPaginate(true),
//	    sitecapture.WithPaperSize(sitecapture.Letter),
//	    sitecapture.WithOrientation(sitecapture.Landscape),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	report, err := sitecapture.Capture(ctx, job, sitecapture.WithNoSandbox())
//
// Errors are [*Error] values; test their kind with [errors.Is]:
//
//	if errors.Is(err, sitecapture.ErrLoad) { ... }
//
// # Orchestrator
//
// [Capture] is a thin wrapper over an [Orchestrator], which exposes the
// capture's life cycle:
//
//	o := sitecapture.NewOrchestrator(job, sitecapture.NewLauncher())
//	o.SetViewportWidth(1280)
//	o.SetObserver(sitecapture.ObserverFunc(func(job sitecapture.Job, err error) {
//	    log.Printf("capture %s failed: %v", job.ID(), err)
//	}))
//	if err := o.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	report, err := o.Wait(ctx)
//
// # Engines
//
// Pages are rendered by Chrome or Chromium, driven through chromedp by
// default or go-rod with [WithEngine]([EngineRod]). The browser must be in
// PATH, configured with [WithChromePath], or downloaded with
// [WithAutoDownload]. Any other renderer can be plugged in by implementing
// [Engine] and [Launcher].
//
// # Pagination
//
// PDF output is laid out at the job's viewport width, scaled to the paper
// width. With pagination enabled the content is cut into consecutive
// paper-sized pages; otherwise it is printed on a single page as tall as the
// content. Landscape orientation swaps the paper axes first.
package sitecapture
