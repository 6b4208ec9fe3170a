package memory_test

import (
	"testing"

	"github.com/najoast/socialshard/store"
	"github.com/najoast/socialshard/store/memory"
	"github.com/najoast/socialshard/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.RunConformanceSuite(t, func(t *testing.T) store.Store {
		return memory.New()
	})
}
