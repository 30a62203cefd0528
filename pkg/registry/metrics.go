package registry

// Metrics receives registry measurements. observability.Metrics implements it.
type Metrics interface {
	SetLivePlugins(n int)
	ObserveLifecycle(op string, err error)
	ObserveCatalogSync(op string, err error)
	ObserveWatchEvent(action string)
}

type nopMetrics struct{}

func (nopMetrics) SetLivePlugins(int) {}

func (nopMetrics) ObserveLifecycle(string, error) {}

func (nopMetrics) ObserveCatalogSync(string, error) {}

func (nopMetrics) ObserveWatchEvent(string) {}
