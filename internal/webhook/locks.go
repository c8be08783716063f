package webhook

import "sync"

// KeyedMutex はキー（ユーザーID）ごとのミューテックスを提供する。
// 同一ユーザーに対する通知処理を直列化し、並行するwatch破棄と
// 追跡イベント更新の間のlost updateを防ぐ。
// エントリは使用中カウントが0になった時点で解放する。
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex はKeyedMutexを生成する。
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		locks: make(map[string]*keyedLock),
	}
}

// Lock は指定キーのロックを取得し、解放用の関数を返す。
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
