// Package event содержит ошибки, которые клиент доставляет в колбэки и
// события записей. Офлайн, таймауты и отказы сервера никогда не бросаются:
// они приходят в колбэк вызывающего кода.
package event
