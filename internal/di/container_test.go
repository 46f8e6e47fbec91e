// internal/di/container_test.go
package di

import (
	"reflect"
	"sync"
	"testing"
)

type fakeService struct {
	name string
}

func TestRegisterAndGet(t *testing.T) {
	c := NewContainer()

	svc := &fakeService{name: "graph"}
	c.Register("graph", svc)

	got := c.Get("graph")
	if got != svc {
		t.Fatalf("Get 应返回注册的同一实例, 得到 %v", got)
	}

	if c.Get("missing") != nil {
		t.Errorf("未注册的服务应返回 nil")
	}
}

func TestGetTyped(t *testing.T) {
	c := NewContainer()
	c.Register("session", &fakeService{name: "session"})

	svc, ok := c.GetTyped("session", nil).(*fakeService)
	if !ok || svc.name != "session" {
		t.Fatalf("GetTyped 类型断言失败: %v", svc)
	}

	def := &fakeService{name: "default"}
	got := c.GetTyped("missing", def)
	if got != def {
		t.Errorf("缺失服务时应返回默认值")
	}
}

func TestRegisterFactoryLazy(t *testing.T) {
	c := NewContainer()

	calls := 0
	c.RegisterFactory("stats", func() interface{} {
		calls++
		return &fakeService{name: "stats"}
	})

	if calls != 0 {
		t.Fatalf("注册时不应调用工厂, 调用了 %d 次", calls)
	}
	if !c.Has("stats") {
		t.Errorf("Has 应看到工厂注册的服务")
	}

	first := c.Get("stats")
	second := c.Get("stats")
	if calls != 1 {
		t.Errorf("工厂应只调用一次, 调用了 %d 次", calls)
	}
	if first == nil || first != second {
		t.Errorf("重复 Get 应返回同一实例")
	}
}

func TestHasRemoveClear(t *testing.T) {
	c := NewContainer()
	c.Register("a", &fakeService{name: "a"})
	c.RegisterFactory("b", func() interface{} { return &fakeService{name: "b"} })

	if !c.Has("a") || !c.Has("b") {
		t.Fatalf("Has 应同时覆盖实例与工厂")
	}

	c.Remove("a")
	if c.Has("a") {
		t.Errorf("Remove 后服务不应存在")
	}

	c.Clear()
	if c.Has("b") || len(c.GetNames()) != 0 {
		t.Errorf("Clear 后容器应为空")
	}
}

func TestGetNamesSorted(t *testing.T) {
	c := NewContainer()
	c.Register("session", &fakeService{})
	c.Register("graph", &fakeService{})
	c.RegisterFactory("export", func() interface{} { return &fakeService{} })

	want := []string{"export", "graph", "session"}
	if got := c.GetNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("GetNames = %v, 期望 %v", got, want)
	}

	// 已实例化的工厂服务不应重复出现
	c.Get("export")
	if got := c.GetNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("实例化后 GetNames = %v, 期望 %v", got, want)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := NewContainer()
	c.RegisterFactory("shared", func() interface{} { return &fakeService{name: "shared"} })

	var wg sync.WaitGroup
	results := make([]interface{}, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Get("shared")
		}(i)
	}
	wg.Wait()

	for i, r := range results {
		if r == nil || r != results[0] {
			t.Fatalf("并发 Get 第 %d 个结果不一致", i)
		}
	}
}

func TestGlobalContainerSingleton(t *testing.T) {
	if GetContainer() != GetContainer() {
		t.Fatalf("GetContainer 应返回同一全局实例")
	}
}
