// internal/di/container.go
package di

import (
	"sort"
	"sync"
)

// Container 是一个简单的依赖注入容器
type Container struct {
	services  map[string]interface{}
	factories map[string]func() interface{}
	mutex     sync.RWMutex
}

// 全局容器实例（单例模式）
var (
	globalContainer *Container
	once            sync.Once
)

// NewContainer 创建一个新的依赖注入容器
func NewContainer() *Container {
	return &Container{
		services:  make(map[string]interface{}),
		factories: make(map[string]func() interface{}),
	}
}

// GetContainer 获取全局容器实例
func GetContainer() *Container {
	once.Do(func() {
		globalContainer = NewContainer()
	})
	return globalContainer
}

// Register 在容器中注册一个服务实例
func (c *Container) Register(name string, service interface{}) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.services[name] = service
}

// RegisterFactory 注册一个惰性构造的服务，首次Get时才创建实例
func (c *Container) RegisterFactory(name string, factory func() interface{}) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.factories[name] = factory
}

// Get 从容器中获取一个服务实例
func (c *Container) Get(name string) interface{} {
	c.mutex.RLock()
	service, exists := c.services[name]
	c.mutex.RUnlock()

	if exists {
		return service
	}

	// 检查惰性工厂
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if service, exists = c.services[name]; exists {
		return service
	}
	factory, ok := c.factories[name]
	if !ok {
		return nil
	}

	service = factory()
	c.services[name] = service
	return service
}

// GetTyped 获取指定类型的服务实例（带类型转换的辅助方法）
func (c *Container) GetTyped(name string, defaultVal interface{}) interface{} {
	service := c.Get(name)
	if service == nil {
		return defaultVal
	}
	return service
}

// Has 检查容器中是否存在指定名称的服务
func (c *Container) Has(name string) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if _, exists := c.services[name]; exists {
		return true
	}
	_, exists := c.factories[name]
	return exists
}

// Remove 从容器中移除一个服务
func (c *Container) Remove(name string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.services, name)
	delete(c.factories, name)
}

// Clear 清空容器中的所有服务
func (c *Container) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.services = make(map[string]interface{})
	c.factories = make(map[string]func() interface{})
}

// GetNames 获取所有已注册服务的名称（按字典序）
func (c *Container) GetNames() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	names := make([]string, 0, len(c.services)+len(c.factories))
	for name := range c.services {
		names = append(names, name)
	}
	for name := range c.factories {
		if _, dup := c.services[name]; !dup {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	return names
}
